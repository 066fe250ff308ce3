package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/balancewise/photosync/internal/drive"
	"github.com/balancewise/photosync/internal/store"
)

// Remote is the remote object-store contract the executor drives. The Drive
// client is the production implementation; the S3 store is the alternate.
// Defined here at the consumer.
type Remote interface {
	EnsureFolderPath(ctx context.Context, ts time.Time) (string, error)
	UploadFile(ctx context.Context, localURI, filename, folderID string) drive.UploadResult
	UpdateFile(ctx context.Context, oldFileID, localURI, filename, folderID string) drive.UploadResult
	DeleteFile(ctx context.Context, fileID string) error
}

var (
	errNoLocalURI = errors.New("sync: operation has no local image uri")
	errUnknownOp  = errors.New("sync: unknown operation type")
)

// Executor runs one queued operation end-to-end: claims it, performs the
// remote call, and reconciles the outcome into the outbox and the entry's
// sync projection. Execute never panics out and never returns an error;
// every failure path ends in a status update.
type Executor struct {
	store  *store.Store
	remote Remote
	logger *slog.Logger

	now func() time.Time
}

// NewExecutor creates an executor over the given store and remote client.
func NewExecutor(st *store.Store, remote Remote, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{store: st, remote: remote, logger: logger, now: time.Now}
}

// Execute runs a single operation. Returns true only when the operation
// completed successfully. Operations that cannot be claimed (already
// terminal, or raced into processing) are skipped without mutation.
func (e *Executor) Execute(ctx context.Context, op store.Operation) bool {
	if err := e.store.MarkProcessing(ctx, op.ID); err != nil {
		e.logger.Debug("operation not claimable, skipping",
			slog.String("id", op.ID),
			slog.String("status", op.Status),
			slog.String("error", err.Error()),
		)

		return false
	}

	// The entry row may already be gone for delete operations; the badge
	// update is then a harmless no-op.
	e.setEntryStatus(ctx, op.EntryID, store.SyncStatusSyncing)

	fileID, err := e.dispatch(ctx, op)
	if err != nil {
		e.reconcileFailure(ctx, op, err)
		return false
	}

	if markErr := e.store.MarkComplete(ctx, op.ID, fileID); markErr != nil {
		e.logger.Error("marking operation complete failed",
			slog.String("id", op.ID),
			slog.String("error", markErr.Error()),
		)

		return false
	}

	if op.Type != store.TypeDelete {
		if cntErr := e.store.IncrementTotalUploads(ctx); cntErr != nil {
			e.logger.Warn("incrementing upload counter failed",
				slog.String("error", cntErr.Error()),
			)
		}
	}

	e.logger.Info("operation completed",
		slog.String("id", op.ID),
		slog.String("type", op.Type),
	)

	return true
}

// dispatch routes the operation to its handler and returns the resulting
// remote file id ("" for deletes).
func (e *Executor) dispatch(ctx context.Context, op store.Operation) (string, error) {
	switch op.Type {
	case store.TypeUpload:
		return e.handleUpload(ctx, op)
	case store.TypeUpdate:
		return e.handleUpdate(ctx, op)
	case store.TypeDelete:
		return e.handleDelete(ctx, op)
	default:
		return "", fmt.Errorf("%w: %q", errUnknownOp, op.Type)
	}
}

// handleUpload resolves the month folder from the entry's timestamp, uploads
// the photo under a deterministic name, and persists the remote ids onto the
// entry.
func (e *Executor) handleUpload(ctx context.Context, op store.Operation) (string, error) {
	if op.LocalURI == "" {
		return "", errNoLocalURI
	}

	entry, err := e.store.GetEntry(ctx, op.EntryID)
	if err != nil {
		return "", err
	}

	folderID, err := e.remote.EnsureFolderPath(ctx, time.UnixMilli(entry.Timestamp))
	if err != nil {
		return "", err
	}

	res := e.remote.UploadFile(ctx, op.LocalURI, remoteFilename(op.EntryID), folderID)
	if !res.Success {
		return "", res.Err
	}

	if err := e.store.SetEntryRemoteInfo(ctx, op.EntryID, res.FileID, folderID); err != nil {
		return "", err
	}

	return res.FileID, nil
}

// handleUpdate replaces the entry's remote photo. With a prior remote file id
// the old file is deleted before the reupload; without one it degrades to a
// plain upload.
func (e *Executor) handleUpdate(ctx context.Context, op store.Operation) (string, error) {
	if op.LocalURI == "" {
		return "", errNoLocalURI
	}

	entry, err := e.store.GetEntry(ctx, op.EntryID)
	if err != nil {
		return "", err
	}

	folderID, err := e.remote.EnsureFolderPath(ctx, time.UnixMilli(entry.Timestamp))
	if err != nil {
		return "", err
	}

	var res drive.UploadResult
	if op.RemoteFileID != "" {
		res = e.remote.UpdateFile(ctx, op.RemoteFileID, op.LocalURI, remoteFilename(op.EntryID), folderID)
	} else {
		res = e.remote.UploadFile(ctx, op.LocalURI, remoteFilename(op.EntryID), folderID)
	}

	if !res.Success {
		return "", res.Err
	}

	if err := e.store.SetEntryRemoteInfo(ctx, op.EntryID, res.FileID, folderID); err != nil {
		return "", err
	}

	return res.FileID, nil
}

// handleDelete removes the remote file. No remote id means there is nothing
// to delete and the operation is already satisfied. An actual delete failure
// is a hard failure, not swallowed.
func (e *Executor) handleDelete(ctx context.Context, op store.Operation) (string, error) {
	if op.RemoteFileID == "" {
		e.logger.Info("delete operation has no remote file id, treating as done",
			slog.String("id", op.ID),
		)

		return "", nil
	}

	if err := e.remote.DeleteFile(ctx, op.RemoteFileID); err != nil {
		return "", err
	}

	return "", nil
}

// reconcileFailure applies the retry policy to a failed attempt.
func (e *Executor) reconcileFailure(ctx context.Context, op store.Operation, opErr error) {
	msg := opErr.Error()

	switch {
	case IsPermanent(opErr):
		e.markTerminalFailure(ctx, op, msg)

		e.logger.Warn("operation permanently failed",
			slog.String("id", op.ID),
			slog.String("error", msg),
		)
	case ShouldRetry(op.RetryCount):
		notBefore := e.now().Add(DelayFor(op.RetryCount))

		if err := e.store.IncrementRetry(ctx, op.ID, msg, notBefore); err != nil {
			e.logger.Error("requeueing operation failed",
				slog.String("id", op.ID),
				slog.String("error", err.Error()),
			)

			return
		}

		// Back to the queued badge, not the errored one: the next pass
		// picks this operation up again once the backoff elapses.
		e.setEntryStatus(ctx, op.EntryID, store.SyncStatusNotSynced)

		e.logger.Info("operation requeued after transient failure",
			slog.String("id", op.ID),
			slog.Int("retry_count", op.RetryCount+1),
			slog.Time("not_before", notBefore),
			slog.String("error", msg),
		)
	default:
		e.markTerminalFailure(ctx, op, msg)

		e.logger.Warn("operation failed after exhausting retries",
			slog.String("id", op.ID),
			slog.Int("retry_count", op.RetryCount),
			slog.String("error", msg),
		)
	}
}

// markTerminalFailure lands the operation in failed and reflects it on the
// entry badge and the lifetime failure counter.
func (e *Executor) markTerminalFailure(ctx context.Context, op store.Operation, msg string) {
	if err := e.store.MarkFailed(ctx, op.ID, msg); err != nil {
		e.logger.Error("marking operation failed errored",
			slog.String("id", op.ID),
			slog.String("error", err.Error()),
		)

		return
	}

	e.setEntryStatus(ctx, op.EntryID, store.SyncStatusFailed)

	if err := e.store.IncrementFailedUploads(ctx); err != nil {
		e.logger.Warn("incrementing failed counter failed",
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) setEntryStatus(ctx context.Context, entryID, status string) {
	if err := e.store.SetEntrySyncStatus(ctx, entryID, status); err != nil {
		e.logger.Warn("updating entry sync status failed",
			slog.String("entry_id", entryID),
			slog.String("status", status),
			slog.String("error", err.Error()),
		)
	}
}

// remoteFilename derives the deterministic remote name for an entry's photo.
func remoteFilename(entryID string) string {
	return entryID + ".jpg"
}
