package sync

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/balancewise/photosync/internal/store"
)

func TestQueue_EnqueueUpload(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	q := NewQueue(st, testLogger(t))
	ctx := context.Background()

	if err := st.CreateEntry(ctx, "entry-1", "lunch", 1760000000000, "file:///p/l.jpg"); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	if err := st.SetEntrySyncStatus(ctx, "entry-1", store.SyncStatusSynced); err != nil {
		t.Fatalf("SetEntrySyncStatus: %v", err)
	}

	id, err := q.EnqueueUpload(ctx, "entry-1", "file:///p/l.jpg")
	if err != nil {
		t.Fatalf("EnqueueUpload: %v", err)
	}

	if !strings.HasPrefix(id, "upload_entry-1_") {
		t.Errorf("id = %q, want upload_entry-1_ prefix", id)
	}

	op, err := st.GetOperation(ctx, id)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}

	if op.Type != store.TypeUpload || op.Status != store.StatusPending {
		t.Errorf("op = %s/%s, want upload/pending", op.Type, op.Status)
	}

	if op.LocalURI != "file:///p/l.jpg" {
		t.Errorf("local uri = %q", op.LocalURI)
	}

	// Enqueueing flips the badge back to queued.
	entry, err := st.GetEntry(ctx, "entry-1")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}

	if entry.SyncStatus != store.SyncStatusNotSynced {
		t.Errorf("entry status = %q, want not_synced", entry.SyncStatus)
	}
}

func TestQueue_EnqueueUpdateCarriesOldRemoteID(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	q := NewQueue(st, testLogger(t))
	ctx := context.Background()

	if err := st.CreateEntry(ctx, "entry-1", "dinner", 1760000000000, "file:///p/old.jpg"); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	id, err := q.EnqueueUpdate(ctx, "entry-1", "file:///p/new.jpg", "file-old")
	if err != nil {
		t.Fatalf("EnqueueUpdate: %v", err)
	}

	op, err := st.GetOperation(ctx, id)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}

	if op.Type != store.TypeUpdate {
		t.Errorf("type = %q, want update", op.Type)
	}

	if op.LocalURI != "file:///p/new.jpg" || op.RemoteFileID != "file-old" {
		t.Errorf("op = %q/%q, want new uri + old remote id", op.LocalURI, op.RemoteFileID)
	}
}

func TestQueue_EnqueueDeleteLeavesEntryAlone(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	q := NewQueue(st, testLogger(t))
	ctx := context.Background()

	// No entry row at all: the caller deletes it before or after enqueueing.
	id, err := q.EnqueueDelete(ctx, "file-old", "entry-gone")
	if err != nil {
		t.Fatalf("EnqueueDelete: %v", err)
	}

	op, err := st.GetOperation(ctx, id)
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}

	if op.Type != store.TypeDelete || op.RemoteFileID != "file-old" || op.LocalURI != "" {
		t.Errorf("op = %s/%q/%q", op.Type, op.RemoteFileID, op.LocalURI)
	}
}

func TestQueue_KickFiresAfterEnqueue(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	q := NewQueue(st, testLogger(t))
	ctx := context.Background()

	kicked := make(chan struct{}, 1)
	q.SetKick(func() { kicked <- struct{}{} })

	if _, err := q.EnqueueDelete(ctx, "file-x", "entry-x"); err != nil {
		t.Fatalf("EnqueueDelete: %v", err)
	}

	select {
	case <-kicked:
	case <-time.After(5 * time.Second):
		t.Fatal("kick never fired")
	}
}

func TestQueue_IDsAreUniquePerMillisecond(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	q := NewQueue(st, testLogger(t))
	ctx := context.Background()

	// Pin the clock so both ids share the same millisecond.
	fixed := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return fixed }

	id1, err := q.EnqueueDelete(ctx, "f1", "entry-1")
	if err != nil {
		t.Fatalf("EnqueueDelete: %v", err)
	}

	id2, err := q.EnqueueDelete(ctx, "f2", "entry-1")
	if err != nil {
		t.Fatalf("EnqueueDelete: %v", err)
	}

	if id1 == id2 {
		t.Errorf("ids collide: %q", id1)
	}
}
