package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOperations_ListPendingFIFO(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	clock := newFakeClock()
	s.now = clock.Now

	ids := []string{"op-a", "op-b", "op-c"}
	for _, id := range ids {
		if err := s.CreateOperation(ctx, id, TypeUpload, "entry-1", "file:///p/"+id+".jpg", ""); err != nil {
			t.Fatalf("CreateOperation(%s): %v", id, err)
		}

		clock.Advance(time.Second)
	}

	ops, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}

	if len(ops) != 3 {
		t.Fatalf("got %d pending, want 3", len(ops))
	}

	for i, id := range ids {
		if ops[i].ID != id {
			t.Errorf("position %d = %q, want %q", i, ops[i].ID, id)
		}
	}
}

func TestOperations_Lifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateOperation(ctx, "op-1", TypeUpload, "entry-1", "file:///p/1.jpg", ""); err != nil {
		t.Fatalf("CreateOperation: %v", err)
	}

	op, err := s.GetOperation(ctx, "op-1")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}

	if op.Status != StatusPending || op.RetryCount != 0 {
		t.Fatalf("new op = %s/%d, want pending/0", op.Status, op.RetryCount)
	}

	if err := s.MarkProcessing(ctx, "op-1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	// Double claim must fail.
	if err := s.MarkProcessing(ctx, "op-1"); !errors.Is(err, ErrWrongStatus) {
		t.Errorf("double MarkProcessing = %v, want ErrWrongStatus", err)
	}

	if err := s.MarkComplete(ctx, "op-1", "remote-file-1"); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}

	op, err = s.GetOperation(ctx, "op-1")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}

	if op.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", op.Status)
	}

	if op.RemoteFileID != "remote-file-1" {
		t.Errorf("remote file id = %q, want remote-file-1", op.RemoteFileID)
	}
}

func TestOperations_TerminalStatesRejectTransitions(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	// completed
	if err := s.CreateOperation(ctx, "op-done", TypeUpload, "e1", "file:///p/1.jpg", ""); err != nil {
		t.Fatalf("CreateOperation: %v", err)
	}

	mustClaim(t, s, "op-done")

	if err := s.MarkComplete(ctx, "op-done", "f1"); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}

	// failed
	if err := s.CreateOperation(ctx, "op-bad", TypeUpload, "e2", "file:///p/2.jpg", ""); err != nil {
		t.Fatalf("CreateOperation: %v", err)
	}

	mustClaim(t, s, "op-bad")

	if err := s.MarkFailed(ctx, "op-bad", "quota exceeded"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	for _, id := range []string{"op-done", "op-bad"} {
		if err := s.MarkProcessing(ctx, id); !errors.Is(err, ErrWrongStatus) {
			t.Errorf("MarkProcessing(%s) = %v, want ErrWrongStatus", id, err)
		}

		if err := s.MarkComplete(ctx, id, "x"); !errors.Is(err, ErrWrongStatus) {
			t.Errorf("MarkComplete(%s) = %v, want ErrWrongStatus", id, err)
		}

		if err := s.IncrementRetry(ctx, id, "boom", time.Now()); !errors.Is(err, ErrWrongStatus) {
			t.Errorf("IncrementRetry(%s) = %v, want ErrWrongStatus", id, err)
		}
	}
}

func TestOperations_IncrementRetryBackoff(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	clock := newFakeClock()
	s.now = clock.Now

	if err := s.CreateOperation(ctx, "op-r", TypeUpload, "e1", "file:///p/1.jpg", ""); err != nil {
		t.Fatalf("CreateOperation: %v", err)
	}

	mustClaim(t, s, "op-r")

	notBefore := clock.Now().Add(30 * time.Second)
	if err := s.IncrementRetry(ctx, "op-r", "network timeout", notBefore); err != nil {
		t.Fatalf("IncrementRetry: %v", err)
	}

	op, err := s.GetOperation(ctx, "op-r")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}

	if op.Status != StatusPending || op.RetryCount != 1 {
		t.Errorf("op = %s/%d, want pending/1", op.Status, op.RetryCount)
	}

	if op.LastError != "network timeout" {
		t.Errorf("last error = %q", op.LastError)
	}

	// Not due yet.
	ops, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}

	if len(ops) != 0 {
		t.Fatalf("got %d pending before backoff elapsed, want 0", len(ops))
	}

	clock.Advance(31 * time.Second)

	ops, err = s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}

	if len(ops) != 1 {
		t.Fatalf("got %d pending after backoff elapsed, want 1", len(ops))
	}
}

func TestOperations_ResetForRetry(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateOperation(ctx, "op-f", TypeUpload, "e1", "file:///p/1.jpg", ""); err != nil {
		t.Fatalf("CreateOperation: %v", err)
	}

	// Only valid from failed.
	if err := s.ResetForRetry(ctx, "op-f"); !errors.Is(err, ErrWrongStatus) {
		t.Errorf("ResetForRetry on pending = %v, want ErrWrongStatus", err)
	}

	mustClaim(t, s, "op-f")

	if err := s.MarkFailed(ctx, "op-f", "permission denied"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	if err := s.ResetForRetry(ctx, "op-f"); err != nil {
		t.Fatalf("ResetForRetry: %v", err)
	}

	op, err := s.GetOperation(ctx, "op-f")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}

	if op.Status != StatusPending || op.RetryCount != 0 || op.LastError != "" || op.NotBefore != 0 {
		t.Errorf("reset op = %s/%d/%q/%d, want pending/0/\"\"/0",
			op.Status, op.RetryCount, op.LastError, op.NotBefore)
	}
}

func TestOperations_MarkCompletePreservesRemoteFileID(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateOperation(ctx, "op-d", TypeDelete, "e1", "", "remote-old"); err != nil {
		t.Fatalf("CreateOperation: %v", err)
	}

	mustClaim(t, s, "op-d")

	// Deletes complete with no new file id; the deleted id stays for audit.
	if err := s.MarkComplete(ctx, "op-d", ""); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}

	op, err := s.GetOperation(ctx, "op-d")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}

	if op.RemoteFileID != "remote-old" {
		t.Errorf("remote file id = %q, want remote-old", op.RemoteFileID)
	}
}

func TestOperations_RecoverStale(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"op-1", "op-2"} {
		if err := s.CreateOperation(ctx, id, TypeUpload, "e1", "file:///p.jpg", ""); err != nil {
			t.Fatalf("CreateOperation: %v", err)
		}

		mustClaim(t, s, id)
	}

	n, err := s.RecoverStale(ctx)
	if err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}

	if n != 2 {
		t.Errorf("recovered %d, want 2", n)
	}

	ops, err := s.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}

	if len(ops) != 2 {
		t.Errorf("got %d pending after recovery, want 2", len(ops))
	}
}

func TestOperations_DeleteCompletedAndCount(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateOperation(ctx, "op-1", TypeUpload, "e1", "file:///1.jpg", ""); err != nil {
		t.Fatalf("CreateOperation: %v", err)
	}

	if err := s.CreateOperation(ctx, "op-2", TypeUpload, "e2", "file:///2.jpg", ""); err != nil {
		t.Fatalf("CreateOperation: %v", err)
	}

	mustClaim(t, s, "op-1")

	if err := s.MarkComplete(ctx, "op-1", "f1"); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}

	count, err := s.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}

	if count != 1 {
		t.Errorf("pending count = %d, want 1", count)
	}

	n, err := s.DeleteCompleted(ctx)
	if err != nil {
		t.Fatalf("DeleteCompleted: %v", err)
	}

	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}

	if _, err := s.GetOperation(ctx, "op-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetOperation after prune = %v, want ErrNotFound", err)
	}
}

func TestOperations_ListFailed(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateOperation(ctx, "op-ok", TypeUpload, "e1", "file:///1.jpg", ""); err != nil {
		t.Fatalf("CreateOperation: %v", err)
	}

	if err := s.CreateOperation(ctx, "op-bad", TypeUpload, "e2", "file:///2.jpg", ""); err != nil {
		t.Fatalf("CreateOperation: %v", err)
	}

	mustClaim(t, s, "op-bad")

	if err := s.MarkFailed(ctx, "op-bad", "file too large"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	failed, err := s.ListFailed(ctx, 3)
	if err != nil {
		t.Fatalf("ListFailed: %v", err)
	}

	if len(failed) != 1 || failed[0].ID != "op-bad" {
		t.Fatalf("ListFailed = %+v, want just op-bad", failed)
	}

	if failed[0].LastError != "file too large" {
		t.Errorf("last error = %q", failed[0].LastError)
	}
}

func TestOperations_TransitionOnMissingID(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.MarkProcessing(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkProcessing(missing) = %v, want ErrNotFound", err)
	}
}

func mustClaim(t *testing.T, s *Store, id string) {
	t.Helper()

	if err := s.MarkProcessing(context.Background(), id); err != nil {
		t.Fatalf("MarkProcessing(%s): %v", id, err)
	}
}
