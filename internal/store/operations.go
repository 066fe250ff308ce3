package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Operation lifecycle:
//
//	Create → pending → processing → completed
//	                             → failed
//	                             → pending (transient failure, IncrementRetry)
//
// completed and failed are terminal. The single sanctioned way out of failed
// is ResetForRetry (user-initiated manual retry). Every transition is
// status-guarded in SQL; an UPDATE that matches zero rows returns
// ErrWrongStatus so a caller re-running a terminal operation is rejected
// instead of silently mutating it.

// Operation types for sync_operations.operation_type.
const (
	TypeUpload = "upload"
	TypeUpdate = "update"
	TypeDelete = "delete"
)

// Operation statuses for sync_operations.status.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrNotFound is returned when an operation id does not exist.
var ErrNotFound = errors.New("store: operation not found")

// ErrWrongStatus is returned when a status transition is attempted on an
// operation that is not in the required prior status.
var ErrWrongStatus = errors.New("store: operation not in required status")

// Operation is one outbox entry: a durable record of a remote mutation that
// must eventually be applied to the object store.
type Operation struct {
	ID           string
	Type         string
	EntryID      string
	LocalURI     string // empty for delete operations
	RemoteFileID string // empty until upload succeeds, pre-set for update/delete
	Status       string
	RetryCount   int
	LastError    string
	NotBefore    int64 // unix millis; 0 means due immediately
	CreatedAt    int64
	UpdatedAt    int64
}

// CreateOperation inserts a new outbox row as pending with zero retries.
func (s *Store) CreateOperation(ctx context.Context, id, opType, entryID, localURI, remoteFileID string) error {
	now := s.now().UnixMilli()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_operations
			(id, operation_type, entry_id, local_image_uri, remote_file_id,
			 status, retry_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, '`+StatusPending+`', 0, ?, ?)`,
		id, opType, entryID, nullString(localURI), nullString(remoteFileID), now, now)
	if err != nil {
		return fmt.Errorf("store: create operation %s: %w", id, err)
	}

	return nil
}

// ListPending returns the operations eligible for a processing pass: pending
// or failed rows whose backoff deadline has passed, oldest first. Oldest-first
// keeps per-entry FIFO because each entry's operations are created in causal
// order. Failed rows are included so the needs-attention set stays visible to
// a pass, but the processing claim rejects them (see MarkProcessing).
func (s *Store) ListPending(ctx context.Context) ([]Operation, error) {
	return s.queryOperations(ctx,
		`WHERE status IN ('`+StatusPending+`', '`+StatusFailed+`')
		   AND (not_before IS NULL OR not_before <= ?)
		 ORDER BY created_at ASC`,
		"list pending", s.now().UnixMilli())
}

// GetOperation returns a single operation by id, or ErrNotFound.
func (s *Store) GetOperation(ctx context.Context, id string) (*Operation, error) {
	ops, err := s.queryOperations(ctx, `WHERE id = ?`, "get", id)
	if err != nil {
		return nil, err
	}

	if len(ops) == 0 {
		return nil, fmt.Errorf("store: operation %s: %w", id, ErrNotFound)
	}

	return &ops[0], nil
}

// ListByEntry returns all operations that reference the given entry,
// newest first. Used by the per-entry history view.
func (s *Store) ListByEntry(ctx context.Context, entryID string) ([]Operation, error) {
	return s.queryOperations(ctx,
		`WHERE entry_id = ? ORDER BY created_at DESC`, "list by entry", entryID)
}

// ListFailed returns operations needing user attention: terminally failed, or
// with their retry budget spent. maxRetries is the pipeline retry ceiling.
func (s *Store) ListFailed(ctx context.Context, maxRetries int) ([]Operation, error) {
	return s.queryOperations(ctx,
		`WHERE status = '`+StatusFailed+`' OR retry_count >= ?
		 ORDER BY updated_at DESC`,
		"list failed", maxRetries)
}

// MarkProcessing claims an operation for execution (pending → processing).
// Returns ErrWrongStatus if the operation is not pending, which is how
// terminal rows pulled by a pass get rejected instead of re-executed.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	return s.transition(ctx, id, "mark processing",
		`UPDATE sync_operations SET status = '`+StatusProcessing+`', updated_at = ?
		 WHERE id = ? AND status = '`+StatusPending+`'`,
		s.now().UnixMilli(), id)
}

// MarkComplete transitions processing → completed. A non-empty remoteFileID
// is persisted onto the row for audit; an empty one leaves the stored id
// untouched (delete operations carry the id they deleted).
func (s *Store) MarkComplete(ctx context.Context, id, remoteFileID string) error {
	return s.transition(ctx, id, "mark complete",
		`UPDATE sync_operations
		 SET status = '`+StatusCompleted+`',
		     remote_file_id = CASE WHEN ? = '' THEN remote_file_id ELSE ? END,
		     last_error = NULL,
		     updated_at = ?
		 WHERE id = ? AND status = '`+StatusProcessing+`'`,
		remoteFileID, remoteFileID, s.now().UnixMilli(), id)
}

// MarkFailed transitions processing → failed, recording the error.
func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) error {
	return s.transition(ctx, id, "mark failed",
		`UPDATE sync_operations
		 SET status = '`+StatusFailed+`', last_error = ?, updated_at = ?
		 WHERE id = ? AND status = '`+StatusProcessing+`'`,
		errMsg, s.now().UnixMilli(), id)
}

// IncrementRetry requeues a transiently-failed operation: bumps the retry
// counter, records the error, resets status to pending, and stamps the
// backoff deadline so ListPending skips the row until notBefore.
func (s *Store) IncrementRetry(ctx context.Context, id, errMsg string, notBefore time.Time) error {
	return s.transition(ctx, id, "increment retry",
		`UPDATE sync_operations
		 SET retry_count = retry_count + 1,
		     status = '`+StatusPending+`',
		     last_error = ?,
		     not_before = ?,
		     updated_at = ?
		 WHERE id = ? AND status = '`+StatusProcessing+`'`,
		errMsg, notBefore.UnixMilli(), s.now().UnixMilli(), id)
}

// ResetForRetry is the manual-retry action from the settings screen: zero the
// retry counter, clear the error and backoff deadline, set pending. Only
// valid from failed; this is the single sanctioned exit from a terminal state.
func (s *Store) ResetForRetry(ctx context.Context, id string) error {
	return s.transition(ctx, id, "reset for retry",
		`UPDATE sync_operations
		 SET retry_count = 0, status = '`+StatusPending+`',
		     last_error = NULL, not_before = NULL, updated_at = ?
		 WHERE id = ? AND status = '`+StatusFailed+`'`,
		s.now().UnixMilli(), id)
}

// DeleteOperation removes an outbox row (the "dismiss" action).
func (s *Store) DeleteOperation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_operations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete operation %s: %w", id, err)
	}

	return nil
}

// DeleteCompleted prunes all completed rows and returns the count removed.
func (s *Store) DeleteCompleted(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_operations WHERE status = '`+StatusCompleted+`'`)
	if err != nil {
		return 0, fmt.Errorf("store: delete completed: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete completed rows affected: %w", err)
	}

	return int(n), nil
}

// CountPending returns a fast count of queued work (pending + failed rows,
// regardless of backoff deadline) for UI badges.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_operations
		 WHERE status IN ('`+StatusPending+`', '`+StatusFailed+`')`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count pending: %w", err)
	}

	return count, nil
}

// RecoverStale resets rows abandoned in processing back to pending. Called at
// Open so a crash mid-upload is recovered as a retry rather than a stuck row.
func (s *Store) RecoverStale(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sync_operations
		 SET status = '`+StatusPending+`', updated_at = ?
		 WHERE status = '`+StatusProcessing+`'`,
		s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("store: recover stale: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: recover stale rows affected: %w", err)
	}

	return int(n), nil
}

// transition runs a status-guarded UPDATE and maps a zero-row match to
// ErrWrongStatus (or ErrNotFound when the id does not exist at all).
func (s *Store) transition(ctx context.Context, id, desc, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: %s %s: %w", desc, id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: %s %s rows affected: %w", desc, id, err)
	}

	if rows == 0 {
		if _, getErr := s.GetOperation(ctx, id); getErr != nil {
			return getErr
		}

		return fmt.Errorf("store: %s %s: %w", desc, id, ErrWrongStatus)
	}

	return nil
}

const operationSelectCols = `SELECT id, operation_type, entry_id, local_image_uri,
	remote_file_id, status, retry_count, last_error, not_before, created_at, updated_at
 FROM sync_operations `

// queryOperations executes a parameterized query against sync_operations.
// The whereClause is always a compile-time constant, never user input.
func (s *Store) queryOperations(ctx context.Context, whereClause, desc string, args ...any) ([]Operation, error) {
	rows, err := s.db.QueryContext(ctx, operationSelectCols+whereClause, args...)
	if err != nil {
		return nil, fmt.Errorf("store: operations %s: %w", desc, err)
	}
	defer rows.Close()

	var result []Operation

	for rows.Next() {
		op, scanErr := scanOperation(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		result = append(result, *op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating %s rows: %w", desc, err)
	}

	return result, nil
}

func scanOperation(rows *sql.Rows) (*Operation, error) {
	var (
		op        Operation
		localURI  sql.NullString
		fileID    sql.NullString
		lastErr   sql.NullString
		notBefore sql.NullInt64
	)

	err := rows.Scan(&op.ID, &op.Type, &op.EntryID, &localURI, &fileID,
		&op.Status, &op.RetryCount, &lastErr, &notBefore, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: scanning operation row: %w", err)
	}

	op.LocalURI = localURI.String
	op.RemoteFileID = fileID.String
	op.LastError = lastErr.String

	if notBefore.Valid {
		op.NotBefore = notBefore.Int64
	}

	return &op, nil
}
