package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vilaca/reciprocity-bot/internal/domain"
)

// FileStore keeps the tracked set in a JSON file of
// [owner, "YYYY-MM-DD", "owner/name"] triples.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileStore creates a file store at path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the state file. A missing or empty file is an empty set.
func (s *FileStore) Load(ctx context.Context) ([]domain.TrackedEngagement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no state file, starting empty", "path", s.path)
		return []domain.TrackedEngagement{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	records, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}

	s.logger.Info("loaded state", "path", s.path, "records", len(records))
	return records, nil
}

// Save writes the records to a temporary file and renames it over the
// state file, so an interrupted save never leaves a partial file.
func (s *FileStore) Save(ctx context.Context, records []domain.TrackedEngagement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := Encode(records)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.logger.Debug("saved state", "path", s.path, "records", len(records))
	return nil
}

// Close is a no-op; the file is only open during Load and Save.
func (s *FileStore) Close() error {
	return nil
}

// Encode renders records one triple per line.
func Encode(records []domain.TrackedEngagement) ([]byte, error) {
	if len(records) == 0 {
		return []byte("[]\n"), nil
	}

	var buf bytes.Buffer
	buf.WriteString("[\n")
	for i, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", record, err)
		}
		buf.WriteString("  ")
		buf.Write(line)
		if i < len(records)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("]\n")
	return buf.Bytes(), nil
}

// Decode parses a state file. Whitespace-only input is an empty set.
func Decode(data []byte) ([]domain.TrackedEngagement, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []domain.TrackedEngagement{}, nil
	}

	var records []domain.TrackedEngagement
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.TrackedEngagement{}
	}
	return records, nil
}
