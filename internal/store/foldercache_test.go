package store

import (
	"context"
	"testing"
	"time"
)

func TestFolderCache_RoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.FolderID(ctx, "diet_2026-03")
	if err != nil {
		t.Fatalf("FolderID: %v", err)
	}

	if id != "" {
		t.Errorf("cold cache = %q, want empty", id)
	}

	if err := s.SetFolderID(ctx, "diet_2026-03", "folder-abc"); err != nil {
		t.Fatalf("SetFolderID: %v", err)
	}

	id, err = s.FolderID(ctx, "diet_2026-03")
	if err != nil {
		t.Fatalf("FolderID: %v", err)
	}

	if id != "folder-abc" {
		t.Errorf("cached id = %q, want folder-abc", id)
	}

	// Re-set replaces.
	if err := s.SetFolderID(ctx, "diet_2026-03", "folder-def"); err != nil {
		t.Fatalf("SetFolderID: %v", err)
	}

	id, err = s.FolderID(ctx, "diet_2026-03")
	if err != nil {
		t.Fatalf("FolderID: %v", err)
	}

	if id != "folder-def" {
		t.Errorf("replaced id = %q, want folder-def", id)
	}
}

func TestFolderCache_TTLExpiry(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	clock := newFakeClock()
	s.now = clock.Now

	if err := s.SetFolderID(ctx, "diet_2026-01", "folder-old"); err != nil {
		t.Fatalf("SetFolderID: %v", err)
	}

	// Just inside the window.
	clock.Advance(folderCacheTTL - time.Minute)

	id, err := s.FolderID(ctx, "diet_2026-01")
	if err != nil {
		t.Fatalf("FolderID: %v", err)
	}

	if id != "folder-old" {
		t.Errorf("id inside TTL = %q, want folder-old", id)
	}

	// Past the window: treated as a miss and evicted.
	clock.Advance(2 * time.Minute)

	id, err = s.FolderID(ctx, "diet_2026-01")
	if err != nil {
		t.Fatalf("FolderID: %v", err)
	}

	if id != "" {
		t.Errorf("id past TTL = %q, want empty", id)
	}
}

func TestFolderCache_Clear(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetFolderID(ctx, "diet_2026-02", "folder-x"); err != nil {
		t.Fatalf("SetFolderID: %v", err)
	}

	if err := s.ClearFolderCache(ctx); err != nil {
		t.Fatalf("ClearFolderCache: %v", err)
	}

	id, err := s.FolderID(ctx, "diet_2026-02")
	if err != nil {
		t.Fatalf("FolderID: %v", err)
	}

	if id != "" {
		t.Errorf("id after clear = %q, want empty", id)
	}
}
