// Package store provides durable persistence for the photo sync pipeline:
// the sync-operation outbox, the diet-entry sync projection, the singleton
// sync settings row, and the remote folder-id cache. All tables live in one
// SQLite database opened in WAL mode with a single writer connection.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// walJournalSizeLimit caps the WAL journal at 64 MiB.
const walJournalSizeLimit = 67108864

// Store wraps the SQLite database holding all sync pipeline state.
// Safe for concurrent use; the database is limited to one open connection
// (sole-writer pattern) so writers never contend on SQLITE_BUSY.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// now is injectable for tests that exercise TTL and backoff timing.
	now func() time.Time
}

// Open opens (or creates) the database at dbPath, applies migrations, and
// recovers any operations left in processing by an earlier abrupt shutdown.
// Use ":memory:" for tests.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	// Single connection: the serial processor and the UI read path share it,
	// which keeps every multi-statement sequence free of writer races.
	db.SetMaxOpenConns(1)

	if err := setPragmas(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger, now: time.Now}

	recovered, err := s.RecoverStale(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}

	if recovered > 0 {
		logger.Warn("recovered operations stuck in processing",
			slog.Int("count", recovered),
		)
	}

	logger.Info("sync database ready", slog.String("path", dbPath))

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}

	return nil
}

// DB exposes the underlying handle for tests and migrations tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: %s: %w", p, err)
		}
	}

	return nil
}

// nullString converts "" to SQL NULL so empty optional fields stay NULL
// in the database instead of empty strings.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: s, Valid: true}
}
