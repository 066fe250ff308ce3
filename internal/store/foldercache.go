package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// folderCacheTTL is how long a cached remote folder id stays valid. Entries
// older than this are treated as absent and re-derived against the remote.
const folderCacheTTL = 7 * 24 * time.Hour

// FolderID returns the cached remote folder id for a partition key, or ""
// when there is no valid entry. Expired entries are deleted on read.
func (s *Store) FolderID(ctx context.Context, key string) (string, error) {
	var (
		folderID string
		cachedAt int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT folder_id, cached_at FROM folder_cache WHERE key = ?`, key).Scan(
		&folderID, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("store: read folder cache %s: %w", key, err)
	}

	if s.now().Sub(time.UnixMilli(cachedAt)) > folderCacheTTL {
		if _, delErr := s.db.ExecContext(ctx,
			`DELETE FROM folder_cache WHERE key = ?`, key); delErr != nil {
			return "", fmt.Errorf("store: evict folder cache %s: %w", key, delErr)
		}

		return "", nil
	}

	return folderID, nil
}

// SetFolderID caches a remote folder id for a partition key.
func (s *Store) SetFolderID(ctx context.Context, key, folderID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO folder_cache (key, folder_id, cached_at)
		 VALUES (?, ?, ?)`,
		key, folderID, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: write folder cache %s: %w", key, err)
	}

	return nil
}

// ClearFolderCache drops all cached folder ids.
func (s *Store) ClearFolderCache(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM folder_cache`); err != nil {
		return fmt.Errorf("store: clear folder cache: %w", err)
	}

	return nil
}
