// Package state persists the tracked set between runs.
package state

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/vilaca/reciprocity-bot/internal/domain"
)

// Store loads and saves the whole tracked set.
type Store interface {
	// Load returns the persisted records. A store that has never been
	// written returns an empty slice.
	Load(ctx context.Context) ([]domain.TrackedEngagement, error)
	// Save replaces the persisted records atomically.
	Save(ctx context.Context, records []domain.TrackedEngagement) error
	Close() error
}

// Open returns the store for path: SQLite for .db and .sqlite files,
// a JSON file otherwise.
func Open(path string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(path, logger)
	default:
		return NewFileStore(path, logger), nil
	}
}
