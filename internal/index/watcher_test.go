package index

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/kenaz-canvas/internal/storage"
)

// watcherTestEnv sets up a vault dir, storage, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, storage.Provider, *DB) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store, testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recorder collects watcher callbacks.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(kind, path string) {
	r.mu.Lock()
	r.events = append(r.events, kind+":"+path)
	r.mu.Unlock()
}

func (r *recorder) has(ev string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.events, ev)
}

func (r *recorder) count(ev string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == ev {
			n++
		}
	}
	return n
}

// startWatcher runs a watcher with a short settle delay until the test ends.
func startWatcher(t *testing.T, vaultDir string, store storage.Provider, db *DB, opts ...WatchOption) *recorder {
	t.Helper()
	rec := &recorder{}
	opts = append([]WatchOption{WithCallback(rec.record), WithSettleDelay(30 * time.Millisecond)}, opts...)
	w := NewWatcher(db, store, vaultDir, quietLogger(), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			t.Errorf("watcher: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
	return rec
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	rec := startWatcher(t, vaultDir, store, db)

	_ = os.WriteFile(filepath.Join(vaultDir, "new.md"), []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("new.md")
		return cs != ""
	}, "new file not indexed by watcher")
	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		return rec.has("created:new.md")
	}, "expected created:new.md callback")
}

func TestWatcher_BurstCoalesced(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	_ = os.WriteFile(filepath.Join(vaultDir, "busy.md"), []byte("v0"), 0o644)
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	rec := startWatcher(t, vaultDir, store, db, WithSettleDelay(200*time.Millisecond))

	for _, v := range []string{"v1", "v2", "v3"} {
		_ = os.WriteFile(filepath.Join(vaultDir, "busy.md"), []byte(v), 0o644)
		time.Sleep(10 * time.Millisecond)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("busy.md")
		return cs == storage.Checksum([]byte("v3"))
	}, "final content not indexed")
	time.Sleep(300 * time.Millisecond)
	if n := rec.count("updated:busy.md"); n != 1 {
		t.Errorf("updated callbacks = %d, want 1", n)
	}
}

func TestWatcher_OwnWriteNotReported(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	rec := startWatcher(t, vaultDir, store, db)

	data := []byte(`{"title":"Board","canvas":{"nodes":[],"edges":[]}}`)
	if err := IndexFile(db, "board.canvas", data, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := store.Write("board.canvas", data); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 0 {
		t.Errorf("events = %v, want none for an already indexed write", rec.events)
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	startWatcher(t, vaultDir, store, db)

	subDir := filepath.Join(vaultDir, "subdir")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("subdir/deep.md")
		return cs != ""
	}, "file in new subdir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	_ = os.WriteFile(filepath.Join(vaultDir, "del.md"), []byte("# Delete Me"), 0o644)
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	rec := startWatcher(t, vaultDir, store, db)

	_ = os.Remove(filepath.Join(vaultDir, "del.md"))

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("del.md")
		return cs == "" && rec.has("deleted:del.md")
	}, "deleted file still in index")
}

func TestWatcher_RenameFile(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	_ = os.WriteFile(filepath.Join(vaultDir, "old.md"), []byte("# Rename"), 0o644)
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	startWatcher(t, vaultDir, store, db)

	_ = os.Rename(filepath.Join(vaultDir, "old.md"), filepath.Join(vaultDir, "renamed.md"))

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum("old.md")
		newCS, _ := db.GetChecksum("renamed.md")
		return oldCS == "" && newCS != ""
	}, "rename failed: old path should be removed and new path indexed")
}

func TestWatcher_MovedDirReconciles(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	_ = os.MkdirAll(filepath.Join(vaultDir, "boards"), 0o755)
	_ = os.WriteFile(filepath.Join(vaultDir, "boards", "a.canvas"), []byte(`{"title":"A"}`), 0o644)
	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatal(err)
	}
	rec := startWatcher(t, vaultDir, store, db)

	// Move the directory out of the vault entirely.
	_ = os.Rename(filepath.Join(vaultDir, "boards"), filepath.Join(t.TempDir(), "boards"))

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("boards/a.canvas")
		return cs == "" && rec.has("deleted:boards/a.canvas")
	}, "notes of a moved directory still indexed")
}

func TestWatcher_CanvasFileIndexed(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	startWatcher(t, vaultDir, store, db)

	body := `{"title":"Plan","canvas":{"nodes":[{"id":"n1","position":{"x":0,"y":0},"kind":"note-reference","noteId":"todo.md"}],"edges":[]}}`
	_ = os.WriteFile(filepath.Join(vaultDir, "plan.canvas"), []byte(body), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		n, err := db.GetNote("plan.canvas")
		return err == nil && n.Title == "Plan"
	}, "canvas file not indexed by watcher")
	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		bl, _ := db.Backlinks("todo.md")
		return len(bl) == 1
	}, "note-reference link not indexed")
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	_ = os.MkdirAll(filepath.Join(vaultDir, "attachments"), 0o755)
	rec := startWatcher(t, vaultDir, store, db, WithIgnoredDirs("attachments"))

	_ = os.WriteFile(filepath.Join(vaultDir, "image.png"), []byte("png"), 0o644)
	_ = os.WriteFile(filepath.Join(vaultDir, "attachments", "stray.md"), []byte("# no"), 0o644)
	_ = os.MkdirAll(filepath.Join(vaultDir, ".trash"), 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(vaultDir, ".trash", "gone.md"), []byte("# no"), 0o644)
	time.Sleep(300 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 0 {
		t.Errorf("events = %v for ignored files", rec.events)
	}
}

func TestWatcherSkipped(t *testing.T) {
	w := NewWatcher(nil, nil, "/vault", quietLogger(), WithIgnoredDirs("attachments"))
	tests := []struct {
		rel  string
		want bool
	}{
		{"note.md", false},
		{"boards/plan.canvas", false},
		{"attachments/x.png", true},
		{"attachments", true},
		{".git/config", true},
		{"dir/.hidden/n.md", true},
		{".kenaz-canvas-tmp-123", true},
		{".draft.md", false},
	}
	for _, tt := range tests {
		if got := w.skipped(tt.rel); got != tt.want {
			t.Errorf("skipped(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}
