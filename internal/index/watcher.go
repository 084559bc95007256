package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/kenaz-canvas/internal/models"
	"github.com/starford/kenaz-canvas/internal/storage"
)

// Change kinds passed to EventCallback.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

const defaultSettleDelay = 150 * time.Millisecond

// EventCallback is called after a watcher-driven index change.
// kind is one of ChangeCreated, ChangeUpdated, ChangeDeleted.
type EventCallback func(kind string, path string)

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithCallback sets the function called after each index change.
func WithCallback(cb EventCallback) WatchOption {
	return func(w *Watcher) { w.notify = cb }
}

// WithIgnoredDirs excludes top-level vault directories, such as the
// attachments folder, from watching.
func WithIgnoredDirs(names ...string) WatchOption {
	return func(w *Watcher) {
		for _, n := range names {
			w.ignored[n] = true
		}
	}
}

// WithSettleDelay sets how long the watcher waits after the last event
// before touching the index.
func WithSettleDelay(d time.Duration) WatchOption {
	return func(w *Watcher) { w.settle = d }
}

// Watcher keeps the index in step with files changed outside the app.
//
// Events are collected per path and applied once the vault has been quiet for
// the settle delay, so an editor's burst of writes, or the temp-file rename
// of an atomic save, costs one index update. Each dirty path is re-read at
// that point: present files are re-indexed when their checksum changed and
// missing files are removed. A renamed directory triggers a full
// reconciliation instead.
type Watcher struct {
	db      *DB
	store   storage.Provider
	root    string
	logger  *slog.Logger
	notify  EventCallback
	ignored map[string]bool
	settle  time.Duration

	fsw       *fsnotify.Watcher
	dirty     map[string]struct{}
	reconcile bool
}

// NewWatcher creates a watcher for the vault at root.
func NewWatcher(db *DB, store storage.Provider, root string, logger *slog.Logger, opts ...WatchOption) *Watcher {
	w := &Watcher{
		db:      db,
		store:   store,
		root:    root,
		logger:  logger,
		ignored: make(map[string]bool),
		settle:  defaultSettleDelay,
		dirty:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.notify == nil {
		w.notify = func(string, string) {}
	}
	return w
}

// Run processes file change events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	w.fsw = fsw

	if err := w.addDirs(w.root); err != nil {
		return err
	}

	w.logger.Info("watcher: started", slog.String("root", w.root))

	var settleTimer *time.Timer
	var settleCh <-chan time.Time
	arm := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(w.settle)
		} else {
			settleTimer.Reset(w.settle)
		}
		settleCh = settleTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case <-settleCh:
			settleCh = nil
			w.flush()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(ev) {
				arm()
			}

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// handle records ev and reports whether anything became dirty.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	rel, ok := w.rel(ev.Name)
	if !ok || w.skipped(rel) {
		return false
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addDirs(ev.Name); err != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", rel),
					slog.String("error", err.Error()))
			}
			w.markDir(ev.Name)
			return true
		}
	}

	if !models.IsNoteFile(rel) {
		// fsnotify reports a moved directory on its old path only.
		if ev.Op&(fsnotify.Rename|fsnotify.Remove) != 0 && filepath.Ext(rel) == "" {
			w.reconcile = true
			return true
		}
		return false
	}

	w.dirty[rel] = struct{}{}
	return true
}

// flush applies everything collected since the last settle.
func (w *Watcher) flush() {
	if w.reconcile {
		w.reconcile = false
		clear(w.dirty)
		w.reconcileAll()
		return
	}

	paths := make([]string, 0, len(w.dirty))
	for p := range w.dirty {
		paths = append(paths, p)
	}
	clear(w.dirty)
	slices.Sort(paths)

	for _, p := range paths {
		w.syncPath(p)
	}
}

// syncPath brings one index entry in line with the file on disk.
func (w *Watcher) syncPath(rel string) {
	prev, err := w.db.GetChecksum(rel)
	if err != nil {
		w.logger.Warn("watcher: checksum lookup failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}

	data, err := w.store.Read(rel)
	if errors.Is(err, fs.ErrNotExist) {
		if prev == "" {
			return
		}
		if err := w.db.DeleteNote(rel); err != nil {
			w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		w.logger.Debug("watcher: deleted", slog.String("path", rel))
		w.notify(ChangeDeleted, rel)
		return
	}
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}

	if prev == storage.Checksum(data) {
		// Written by the app itself and already indexed.
		return
	}
	if err := IndexFile(w.db, rel, data, time.Now()); err != nil {
		w.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	kind := ChangeUpdated
	if prev == "" {
		kind = ChangeCreated
	}
	w.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
	w.notify(kind, rel)
}

// reconcileAll re-syncs the whole vault.
func (w *Watcher) reconcileAll() {
	if err := syncVault(w.db, w.store, w.logger, w.notify); err != nil {
		w.logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
	}
}

// markDir marks every note file below a newly created directory dirty.
func (w *Watcher) markDir(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && p != dir && hidden(d.Name()) {
			return filepath.SkipDir
		}
		if d.IsDir() || !models.IsNoteFile(p) {
			return nil
		}
		if rel, ok := w.rel(p); ok {
			w.dirty[rel] = struct{}{}
		}
		return nil
	})
}

// addDirs adds dir and its watched subdirectories to the watcher.
func (w *Watcher) addDirs(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root {
			if rel, ok := w.rel(p); !ok || w.skipped(rel) {
				return filepath.SkipDir
			}
		}
		return w.fsw.Add(p)
	})
}

// rel converts an absolute path below the root to a slash-separated vault path.
func (w *Watcher) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// skipped reports whether rel lies in a hidden or ignored directory.
func (w *Watcher) skipped(rel string) bool {
	parts := strings.Split(rel, "/")
	if w.ignored[parts[0]] {
		return true
	}
	for _, p := range parts[:len(parts)-1] {
		if hidden(p) {
			return true
		}
	}
	last := parts[len(parts)-1]
	return hidden(last) && !models.IsNoteFile(last)
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
