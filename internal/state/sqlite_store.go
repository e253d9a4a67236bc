package state

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vilaca/reciprocity-bot/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps the tracked set in a SQLite table, one row per
// record, ordered by insertion position.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite creates or opens the database at path and applies the schema.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Load returns all records in insertion order.
func (s *SQLiteStore) Load(ctx context.Context) ([]domain.TrackedEngagement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_login, starred_on, repository_full_name
		 FROM tracked_engagements ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked engagements: %w", err)
	}
	defer rows.Close()

	records := []domain.TrackedEngagement{}
	for rows.Next() {
		var owner, starredOn, fullName string
		if err := rows.Scan(&owner, &starredOn, &fullName); err != nil {
			return nil, fmt.Errorf("failed to scan tracked engagement: %w", err)
		}
		date, err := domain.ParseDate(starredOn)
		if err != nil {
			return nil, fmt.Errorf("tracked engagement %s: %w", fullName, err)
		}
		records = append(records, domain.TrackedEngagement{
			OwnerLogin:         owner,
			StarredOn:          date,
			RepositoryFullName: fullName,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tracked engagements: %w", err)
	}

	s.logger.Info("loaded state", "records", len(records))
	return records, nil
}

// Save replaces the table contents in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, records []domain.TrackedEngagement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tracked_engagements`); err != nil {
		return fmt.Errorf("failed to clear tracked engagements: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tracked_engagements (position, owner_login, starred_on, repository_full_name)
		 VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, record := range records {
		if _, err := stmt.ExecContext(ctx, i,
			record.OwnerLogin,
			record.StarredOn.Format(domain.DateLayout),
			record.RepositoryFullName,
		); err != nil {
			return fmt.Errorf("failed to insert %s: %w", record, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tracked engagements: %w", err)
	}
	s.logger.Debug("saved state", "records", len(records))
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
