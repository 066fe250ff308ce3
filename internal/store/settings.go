package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Settings is the singleton sync_settings row (id = 1). wifiOnly is a user
// preference; the counters and lastSyncAt are maintained by the pipeline.
type Settings struct {
	WifiOnly      bool
	LastSyncAt    int64 // unix millis, 0 when never synced
	TotalUploads  int
	FailedUploads int
}

// Settings reads the singleton settings row, seeded by the initial migration.
func (s *Store) Settings(ctx context.Context) (*Settings, error) {
	var (
		st       Settings
		wifiOnly int
		lastSync sql.NullInt64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT wifi_only, last_sync_at, total_uploads, failed_uploads
		 FROM sync_settings WHERE id = 1`).Scan(
		&wifiOnly, &lastSync, &st.TotalUploads, &st.FailedUploads)
	if err != nil {
		return nil, fmt.Errorf("store: read settings: %w", err)
	}

	st.WifiOnly = wifiOnly == 1

	if lastSync.Valid {
		st.LastSyncAt = lastSync.Int64
	}

	return &st, nil
}

// SetWifiOnly updates the wifi-only preference.
func (s *Store) SetWifiOnly(ctx context.Context, wifiOnly bool) error {
	v := 0
	if wifiOnly {
		v = 1
	}

	return s.execSettings(ctx, "set wifi only",
		`UPDATE sync_settings SET wifi_only = ? WHERE id = 1`, v)
}

// UpdateLastSync stamps last_sync_at with the current time. Called once per
// completed pass, regardless of individual operation outcomes.
func (s *Store) UpdateLastSync(ctx context.Context) error {
	return s.execSettings(ctx, "update last sync",
		`UPDATE sync_settings SET last_sync_at = ? WHERE id = 1`, s.now().UnixMilli())
}

// IncrementTotalUploads bumps the lifetime successful-upload counter.
func (s *Store) IncrementTotalUploads(ctx context.Context) error {
	return s.execSettings(ctx, "increment total uploads",
		`UPDATE sync_settings SET total_uploads = total_uploads + 1 WHERE id = 1`)
}

// IncrementFailedUploads bumps the lifetime failed-upload counter.
func (s *Store) IncrementFailedUploads(ctx context.Context) error {
	return s.execSettings(ctx, "increment failed uploads",
		`UPDATE sync_settings SET failed_uploads = failed_uploads + 1 WHERE id = 1`)
}

// ResetFailedUploads zeroes the failed-upload counter.
func (s *Store) ResetFailedUploads(ctx context.Context) error {
	return s.execSettings(ctx, "reset failed uploads",
		`UPDATE sync_settings SET failed_uploads = 0 WHERE id = 1`)
}

// ResetStats zeroes both lifetime counters.
func (s *Store) ResetStats(ctx context.Context) error {
	return s.execSettings(ctx, "reset stats",
		`UPDATE sync_settings SET total_uploads = 0, failed_uploads = 0 WHERE id = 1`)
}

func (s *Store) execSettings(ctx context.Context, desc, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: %s: %w", desc, err)
	}

	return nil
}
