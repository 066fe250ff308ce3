package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/balancewise/photosync/internal/store"
)

// Queue is the operation enqueuer: the CRUD layer calls it on every photo
// mutation. Each enqueue writes a durable outbox row first, then optionally
// kicks an opportunistic sync pass (fire-and-forget — the outbox guarantees
// eventual delivery even when the kick goes nowhere).
type Queue struct {
	store  *store.Store
	logger *slog.Logger

	// kick, when set, is invoked asynchronously after each enqueue.
	kick func()

	now func() time.Time
}

// NewQueue creates an enqueuer over the given store.
func NewQueue(st *store.Store, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{store: st, logger: logger, now: time.Now}
}

// SetKick installs the opportunistic-sync trigger invoked after enqueues.
func (q *Queue) SetKick(kick func()) {
	q.kick = kick
}

// EnqueueUpload records that an entry's photo must be uploaded and marks the
// entry not-yet-synced. Returns the new operation id.
func (q *Queue) EnqueueUpload(ctx context.Context, entryID, localURI string) (string, error) {
	id := q.operationID(store.TypeUpload, entryID)

	if err := q.store.CreateOperation(ctx, id, store.TypeUpload, entryID, localURI, ""); err != nil {
		return "", err
	}

	if err := q.store.SetEntrySyncStatus(ctx, entryID, store.SyncStatusNotSynced); err != nil {
		return "", err
	}

	q.logger.Info("enqueued upload",
		slog.String("id", id),
		slog.String("entry_id", entryID),
	)

	q.kickAsync()

	return id, nil
}

// EnqueueUpdate records a photo replacement. oldRemoteFileID may be empty
// when the previous photo never reached the remote; the executor then
// degrades the update to a plain upload.
func (q *Queue) EnqueueUpdate(ctx context.Context, entryID, newLocalURI, oldRemoteFileID string) (string, error) {
	id := q.operationID(store.TypeUpdate, entryID)

	if err := q.store.CreateOperation(ctx, id, store.TypeUpdate, entryID, newLocalURI, oldRemoteFileID); err != nil {
		return "", err
	}

	if err := q.store.SetEntrySyncStatus(ctx, entryID, store.SyncStatusNotSynced); err != nil {
		return "", err
	}

	q.logger.Info("enqueued update",
		slog.String("id", id),
		slog.String("entry_id", entryID),
	)

	q.kickAsync()

	return id, nil
}

// EnqueueDelete records that a remote file must be removed. The entry itself
// is being deleted by the caller, so its badge is not touched.
func (q *Queue) EnqueueDelete(ctx context.Context, remoteFileID, entryID string) (string, error) {
	id := q.operationID(store.TypeDelete, entryID)

	if err := q.store.CreateOperation(ctx, id, store.TypeDelete, entryID, "", remoteFileID); err != nil {
		return "", err
	}

	q.logger.Info("enqueued delete",
		slog.String("id", id),
		slog.String("entry_id", entryID),
	)

	q.kickAsync()

	return id, nil
}

func (q *Queue) kickAsync() {
	if q.kick == nil {
		return
	}

	go q.kick()
}

// operationID embeds the operation kind, the source entry, and the creation
// time for traceability, plus a short random suffix so two mutations of the
// same entry within one millisecond never collide.
func (q *Queue) operationID(kind, entryID string) string {
	return fmt.Sprintf("%s_%s_%d_%s", kind, entryID, q.now().UnixMilli(), uuid.NewString()[:8])
}
