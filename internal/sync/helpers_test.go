package sync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/balancewise/photosync/internal/drive"
	"github.com/balancewise/photosync/internal/store"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "sync.db"), testLogger(t))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("store.Close: %v", err)
		}
	})

	return s
}

// fakeRemote is a scriptable Remote. Zero value succeeds everything.
type fakeRemote struct {
	folderID  string
	folderErr error
	uploadRes *drive.UploadResult // nil means success with fileID "file-new"
	deleteErr error

	// block, when set, is received from at the start of every upload so a
	// test can hold a pass open.
	block chan struct{}

	folderCalls int
	uploadCalls int
	updateCalls int
	deleteCalls int

	panicOnUpload bool
}

func (f *fakeRemote) EnsureFolderPath(_ context.Context, _ time.Time) (string, error) {
	f.folderCalls++

	if f.folderErr != nil {
		return "", f.folderErr
	}

	if f.folderID == "" {
		return "folder-1", nil
	}

	return f.folderID, nil
}

func (f *fakeRemote) UploadFile(_ context.Context, _, _, _ string) drive.UploadResult {
	f.uploadCalls++

	if f.panicOnUpload {
		panic("remote exploded")
	}

	if f.block != nil {
		<-f.block
	}

	if f.uploadRes != nil {
		return *f.uploadRes
	}

	return drive.UploadResult{Success: true, FileID: "file-new"}
}

func (f *fakeRemote) UpdateFile(ctx context.Context, _, localURI, filename, folderID string) drive.UploadResult {
	f.updateCalls++

	if f.uploadRes != nil {
		return *f.uploadRes
	}

	return drive.UploadResult{Success: true, FileID: "file-replaced"}
}

func (f *fakeRemote) DeleteFile(_ context.Context, _ string) error {
	f.deleteCalls++

	return f.deleteErr
}

// fakeChecker reports a fixed connectivity snapshot.
type fakeChecker struct {
	status NetworkStatus
}

func (f *fakeChecker) Status(_ context.Context) NetworkStatus {
	return f.status
}

func onlineWifi() *fakeChecker {
	return &fakeChecker{status: NetworkStatus{Connected: true, InternetReachable: true, Type: LinkWifi}}
}

// fakeSink records installed credentials.
type fakeSink struct {
	credentials []string
}

func (f *fakeSink) SetCredential(credential string) {
	f.credentials = append(f.credentials, credential)
}
