package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Entry sync statuses for diet_entries.sync_status. These are a denormalized
// projection of the outbox for fast badge rendering; the outbox remains the
// source of truth. The upload executor is the only writer of the remote ids.
const (
	SyncStatusNotSynced = "not_synced"
	SyncStatusSyncing   = "syncing"
	SyncStatusSynced    = "synced"
	SyncStatusFailed    = "failed"
)

// ErrEntryNotFound is returned when a diet entry id does not exist.
var ErrEntryNotFound = errors.New("store: diet entry not found")

// DietEntry is the subset of the diet record the sync pipeline reads and
// writes. The app's full CRUD layer owns the rest of the record.
type DietEntry struct {
	ID             string
	Title          string
	Timestamp      int64 // unix millis, drives the remote folder partition
	LocalImageURI  string
	SyncStatus     string
	RemoteFileID   string
	RemoteFolderID string
	CreatedAt      int64
	UpdatedAt      int64
}

// CreateEntry inserts a diet entry with sync_status not_synced.
func (s *Store) CreateEntry(ctx context.Context, id, title string, timestamp int64, localImageURI string) error {
	now := s.now().UnixMilli()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO diet_entries
			(id, title, entry_timestamp, local_image_uri, sync_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '`+SyncStatusNotSynced+`', ?, ?)`,
		id, title, timestamp, nullString(localImageURI), now, now)
	if err != nil {
		return fmt.Errorf("store: create entry %s: %w", id, err)
	}

	return nil
}

// GetEntry returns a diet entry by id, or ErrEntryNotFound.
func (s *Store) GetEntry(ctx context.Context, id string) (*DietEntry, error) {
	var (
		e        DietEntry
		localURI sql.NullString
		fileID   sql.NullString
		folderID sql.NullString
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, entry_timestamp, local_image_uri, sync_status,
		        remote_file_id, remote_folder_id, created_at, updated_at
		 FROM diet_entries WHERE id = ?`, id).Scan(
		&e.ID, &e.Title, &e.Timestamp, &localURI, &e.SyncStatus,
		&fileID, &folderID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: entry %s: %w", id, ErrEntryNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("store: get entry %s: %w", id, err)
	}

	e.LocalImageURI = localURI.String
	e.RemoteFileID = fileID.String
	e.RemoteFolderID = folderID.String

	return &e, nil
}

// SetEntrySyncStatus updates the sync badge for an entry. Missing entries are
// not an error: a delete operation's entry is usually gone by execution time.
func (s *Store) SetEntrySyncStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE diet_entries SET sync_status = ?, updated_at = ? WHERE id = ?`,
		status, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("store: set entry %s sync status: %w", id, err)
	}

	return nil
}

// SetEntryRemoteInfo persists the remote identifiers after a successful
// upload and flips the badge to synced in the same statement.
func (s *Store) SetEntryRemoteInfo(ctx context.Context, id, remoteFileID, remoteFolderID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE diet_entries
		 SET remote_file_id = ?, remote_folder_id = ?,
		     sync_status = '`+SyncStatusSynced+`', updated_at = ?
		 WHERE id = ?`,
		remoteFileID, remoteFolderID, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("store: set entry %s remote info: %w", id, err)
	}

	return nil
}

// DeleteEntry removes a diet entry row. The caller is responsible for
// enqueueing the remote delete first (the enqueuer needs the remote file id).
func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM diet_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete entry %s: %w", id, err)
	}

	return nil
}
