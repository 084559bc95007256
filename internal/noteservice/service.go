// Package noteservice is the note store: it coordinates vault storage, the
// SQLite index and the active-note selection for both Markdown and canvas
// notes.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/kenaz-canvas/internal/apperr"
	"github.com/starford/kenaz-canvas/internal/canvas"
	"github.com/starford/kenaz-canvas/internal/index"
	"github.com/starford/kenaz-canvas/internal/models"
	"github.com/starford/kenaz-canvas/internal/parser"
	"github.com/starford/kenaz-canvas/internal/storage"
)

// CreateNoteInput describes a new note. Path may be omitted, in which case it
// is derived from Title and Type.
type CreateNoteInput struct {
	Path    string          `json:"path"`
	Type    models.NoteType `json:"type"`
	Title   string          `json:"title"`
	Content string          `json:"content"`
}

// Validate checks the input before any file is touched.
func (in CreateNoteInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Type, validation.In(models.TypeMarkdown, models.TypeCanvas)),
		validation.Field(&in.Title, validation.When(in.Path == "", validation.Required)),
	)
}

// Option configures a Service.
type Option func(*Service)

// WithLimits sets the node size limits of loaded canvas documents.
func WithLimits(l canvas.Limits) Option {
	return func(s *Service) { s.limits = l }
}

// WithActivationHook registers fn to run after the active note changes.
func WithActivationHook(fn func(noteID string)) Option {
	return func(s *Service) { s.onActivate = fn }
}

// Service coordinates storage and index operations.
type Service struct {
	store  storage.Provider
	db     index.NoteIndex
	limits canvas.Limits

	// writeMu serialises read-modify-write cycles on vault files.
	writeMu sync.Mutex

	mu         sync.RWMutex
	active     string
	onActivate func(noteID string)
}

// NewService creates a new note service.
func NewService(store storage.Provider, db index.NoteIndex, opts ...Option) *Service {
	s := &Service{store: store, db: db, limits: canvas.DefaultLimits}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetNote reads a note from storage, parses it, and adds its backlinks.
func (s *Service) GetNote(_ context.Context, id string) (*models.Note, error) {
	if !models.IsNoteFile(id) {
		return nil, fmt.Errorf("noteservice: %s: %w", id, apperr.ErrNotFound)
	}
	data, err := s.read(id)
	if err != nil {
		return nil, err
	}
	return s.buildNote(id, data)
}

// LoadCanvasNote returns a canvas note with its document. Markdown notes fail
// with apperr.ErrNotCanvas.
func (s *Service) LoadCanvasNote(ctx context.Context, id string) (*models.Note, error) {
	if t, _ := models.TypeFromPath(id); t != models.TypeCanvas {
		if _, err := s.GetNote(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("noteservice: load %s: %w", id, apperr.ErrNotCanvas)
	}
	return s.GetNote(ctx, id)
}

// SaveCanvasNote writes doc into an existing canvas note, keeping its title.
// A note deleted in the meantime is not recreated: the call fails with
// apperr.ErrNotFound.
func (s *Service) SaveCanvasNote(ctx context.Context, id string, doc canvas.Document, updatedAt time.Time) error {
	if t, ok := models.TypeFromPath(id); !ok || t != models.TypeCanvas {
		return fmt.Errorf("noteservice: save %s: %w", id, apperr.ErrNotCanvas)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.read(id)
	if err != nil {
		return err
	}
	title := parser.TitleFromPath(id)
	if res, perr := parser.ParseCanvas(id, existing, s.limits); perr == nil {
		title = res.Title
	}

	data, err := parser.EncodeCanvas(title, doc, updatedAt)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.store.Write(id, data); err != nil {
		return fmt.Errorf("noteservice: save %s: %w", id, err)
	}
	return index.IndexFile(s.db, id, data, updatedAt)
}

// SetActiveNote makes id the active note and returns it. An empty id clears
// the selection and returns nil.
func (s *Service) SetActiveNote(ctx context.Context, id string) (*models.Note, error) {
	var note *models.Note
	if id != "" {
		var err error
		if note, err = s.GetNote(ctx, id); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.active = id
	hook := s.onActivate
	s.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return note, nil
}

// ActiveNote returns the active note id, or "".
func (s *Service) ActiveNote() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// ListNotes returns one page of the note listing.
func (s *Service) ListNotes(_ context.Context, q index.ListQuery) ([]models.NoteListItem, int, error) {
	rows, total, err := s.db.ListNotes(q)
	if err != nil {
		return nil, 0, err
	}
	items := make([]models.NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = listItem(r)
	}
	return items, total, nil
}

// ReferenceCandidates lists the notes a canvas may reference: Markdown notes
// other than exclude, sorted by title.
func (s *Service) ReferenceCandidates(ctx context.Context, exclude string) ([]models.NoteListItem, error) {
	const page = 500
	var out []models.NoteListItem
	for offset := 0; ; offset += page {
		items, total, err := s.ListNotes(ctx, index.ListQuery{
			Limit:  page,
			Offset: offset,
			Type:   models.TypeMarkdown,
			Sort:   "title",
		})
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if it.ID != exclude {
				out = append(out, it)
			}
		}
		if offset+page >= total || len(items) == 0 {
			break
		}
	}
	return nonNilSlice(out), nil
}

// CreateNote writes a new note and indexes it.
func (s *Service) CreateNote(_ context.Context, in CreateNoteInput) (*models.Note, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("noteservice: create: %w: %w", apperr.ErrInvalidInput, err)
	}
	id, typ, err := notePath(in)
	if err != nil {
		return nil, err
	}

	var data []byte
	now := time.Now().UTC()
	switch typ {
	case models.TypeCanvas:
		title := strings.TrimSpace(in.Title)
		if title == "" {
			title = parser.TitleFromPath(id)
		}
		data, err = parser.EncodeCanvas(title, canvas.New(s.limits), now)
	default:
		if in.Content != "" || in.Title == "" {
			data = []byte(in.Content)
		} else {
			data, err = parser.EncodeMarkdown(strings.TrimSpace(in.Title), "")
		}
	}
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	exists, err := s.store.Exists(id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("noteservice: create %s: %w", id, apperr.ErrAlreadyExists)
	}
	if err := s.store.Write(id, data); err != nil {
		return nil, err
	}
	if err := index.IndexFile(s.db, id, data, now); err != nil {
		return nil, err
	}
	return s.buildNote(id, data)
}

// DeleteNote removes a note from storage and index. Deleting the active note
// clears the active selection.
func (s *Service) DeleteNote(_ context.Context, id string) error {
	s.writeMu.Lock()
	err := s.store.Delete(id)
	s.writeMu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("noteservice: delete %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if err := s.db.DeleteNote(id); err != nil {
		return err
	}

	s.mu.Lock()
	cleared := s.active == id
	if cleared {
		s.active = ""
	}
	hook := s.onActivate
	s.mu.Unlock()
	if cleared && hook != nil {
		hook("")
	}
	return nil
}

// Backlinks returns all note ids that link to id.
func (s *Service) Backlinks(_ context.Context, id string) ([]string, error) {
	bl, err := s.db.Backlinks(id)
	return nonNilSlice(bl), err
}

// IndexFile parses data and upserts it into the index.
func (s *Service) IndexFile(id string, data []byte) error {
	return index.IndexFile(s.db, id, data, time.Now())
}

// Ping reports whether the index is reachable.
func (s *Service) Ping() error {
	return s.db.Ping()
}

func (s *Service) read(id string) ([]byte, error) {
	data, err := s.store.Read(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("noteservice: %s: %w", id, apperr.ErrNotFound)
	}
	return data, err
}

// buildNote constructs a Note from raw data without re-reading the file.
func (s *Service) buildNote(id string, data []byte) (*models.Note, error) {
	res, err := parser.Parse(id, data, s.limits)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(id)
	if err != nil {
		return nil, err
	}

	n := &models.Note{
		ID:          id,
		Type:        res.Type,
		Title:       res.Title,
		Frontmatter: res.Frontmatter,
		Links:       nonNilSlice(res.Links),
		Tags:        nonNilSlice(res.Tags),
		Canvas:      res.Canvas,
		Backlinks:   nonNilSlice(bl),
		Checksum:    storage.Checksum(data),
		UpdatedAt:   res.UpdatedAt,
	}
	if res.Type == models.TypeMarkdown {
		n.Content = string(data)
	}
	if n.UpdatedAt.IsZero() {
		if row, err := s.db.GetNote(id); err == nil {
			n.UpdatedAt = row.UpdatedAt
		}
	}
	return n, nil
}

// notePath resolves the vault path and type of a note being created.
func notePath(in CreateNoteInput) (string, models.NoteType, error) {
	typ := in.Type
	id := strings.TrimSpace(in.Path)
	if id == "" {
		if typ == "" {
			typ = models.TypeMarkdown
		}
		return strings.TrimSpace(in.Title) + typ.Ext(), typ, nil
	}
	fromPath, ok := models.TypeFromPath(id)
	if !ok {
		if typ == "" {
			typ = models.TypeMarkdown
		}
		return id + typ.Ext(), typ, nil
	}
	if typ != "" && typ != fromPath {
		return "", "", fmt.Errorf("noteservice: %s is not a %s note: %w", id, typ, apperr.ErrInvalidInput)
	}
	return id, fromPath, nil
}

func listItem(r index.NoteRow) models.NoteListItem {
	return models.NoteListItem{
		ID:        r.Path,
		Type:      r.Type,
		Title:     r.Title,
		UpdatedAt: r.UpdatedAt,
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
