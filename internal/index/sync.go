package index

import (
	"log/slog"
	"time"

	"github.com/starford/kenaz-canvas/internal/canvas"
	"github.com/starford/kenaz-canvas/internal/parser"
	"github.com/starford/kenaz-canvas/internal/storage"
)

// Sync walks the vault and brings the index up to date: new and changed
// note files are parsed and upserted, and entries whose file is gone are
// deleted.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	return syncVault(db, store, logger, nil)
}

// syncVault is Sync with a callback for every index change.
func syncVault(db *DB, store storage.Provider, logger *slog.Logger, notify EventCallback) error {
	if notify == nil {
		notify = func(string, string) {}
	}

	metas, err := store.List("")
	if err != nil {
		return err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	var indexed, removed int
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		prev, known := checksums[m.Path]
		if prev == m.Checksum {
			continue
		}
		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, m.Path, data, m.UpdatedAt); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		indexed++
		logger.Debug("sync: indexed", slog.String("path", m.Path))
		if known {
			notify(ChangeUpdated, m.Path)
		} else {
			notify(ChangeCreated, m.Path)
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteNote(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		removed++
		logger.Debug("sync: removed stale", slog.String("path", p))
		notify(ChangeDeleted, p)
	}

	if indexed > 0 || removed > 0 {
		logger.Info("sync: index updated", slog.Int("indexed", indexed), slog.Int("removed", removed))
	}
	return nil
}

// IndexFile parses a Markdown or canvas file and upserts it. modTime is used
// when the file itself carries no update time.
func IndexFile(db Writer, path string, data []byte, modTime time.Time) error {
	res, err := parser.Parse(path, data, canvas.DefaultLimits)
	if err != nil {
		return err
	}
	updated := res.UpdatedAt
	if updated.IsZero() {
		updated = modTime
	}
	if updated.IsZero() {
		updated = time.Now()
	}
	return db.UpsertNote(NoteRow{
		Path:      path,
		Type:      res.Type,
		Title:     res.Title,
		Checksum:  storage.Checksum(data),
		Tags:      res.Tags,
		UpdatedAt: updated,
	}, res.Body, res.Links)
}
