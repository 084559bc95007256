// Package controller owns the canvas document of the active note. It feeds
// input events through the interaction machine, schedules saves for every
// change and exposes toolbar-style node creation.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/kenaz-canvas/internal/apperr"
	"github.com/starford/kenaz-canvas/internal/canvas"
	"github.com/starford/kenaz-canvas/internal/geometry"
	"github.com/starford/kenaz-canvas/internal/interaction"
	"github.com/starford/kenaz-canvas/internal/models"
)

// NoteStore is the part of the note service the controller needs.
type NoteStore interface {
	SetActiveNote(ctx context.Context, id string) (*models.Note, error)
	GetNote(ctx context.Context, id string) (*models.Note, error)
	ReferenceCandidates(ctx context.Context, exclude string) ([]models.NoteListItem, error)
}

// Scheduler sequences canvas writes.
type Scheduler interface {
	Schedule(noteID string, doc canvas.Document)
	FlushNow(ctx context.Context, noteID string) error
	Cancel(noteID string)
}

// Config tunes the controller.
type Config struct {
	Interaction interaction.Config
	Limits      canvas.Limits
	// Screen is the canvas viewport size used when a placement gives none.
	Screen geometry.Size
	Logger *slog.Logger
}

// Placement says where a toolbar-created node goes: an explicit canvas
// position, or the centre of the visible area.
type Placement struct {
	At     *geometry.Point
	Screen geometry.Size
}

// At places a node at canvas point p.
func At(p geometry.Point) Placement { return Placement{At: &p} }

// Centered places a node at the centre of a screen of the given size. A zero
// size uses the configured default.
func Centered(screen geometry.Size) Placement { return Placement{Screen: screen} }

// State is a snapshot of the controller for the rendering layer.
type State struct {
	NoteID   string           `json:"note_id"`
	Title    string           `json:"title,omitempty"`
	Type     models.NoteType  `json:"type,omitempty"`
	Canvas   *canvas.Document `json:"canvas,omitempty"`
	Mode     string           `json:"mode"`
	Selected string           `json:"selected,omitempty"`
	Draft    *string          `json:"draft,omitempty"`
}

// Result is the outcome of one input event.
type Result struct {
	State          State  `json:"state"`
	Changed        bool   `json:"changed"`
	PreventDefault bool   `json:"prevent_default"`
	NavigatedTo    string `json:"navigated_to,omitempty"`
}

// Controller is safe for concurrent use; every operation runs to completion
// under one lock.
type Controller struct {
	store  NoteStore
	sched  Scheduler
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	noteID  string
	title   string
	typ     models.NoteType
	doc     *canvas.Document
	machine *interaction.Machine
}

// New returns a controller with no active note.
func New(store NoteStore, sched Scheduler, cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Screen.IsZero() {
		cfg.Screen = geometry.Size{Width: 1280, Height: 800}
	}
	return &Controller{
		store:   store,
		sched:   sched,
		cfg:     cfg,
		logger:  cfg.Logger,
		machine: interaction.New(cfg.Interaction),
	}
}

// Open activates a note. Canvas notes get a fresh document loaded from the
// store; Markdown notes leave no document. The previous note's pending save
// is cancelled. An empty id deactivates.
func (c *Controller) Open(ctx context.Context, id string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open(ctx, id)
}

func (c *Controller) open(ctx context.Context, id string) (State, error) {
	if id != "" && id == c.noteID {
		return c.state(), nil
	}

	note, err := c.store.SetActiveNote(ctx, id)
	if err != nil {
		return c.state(), fmt.Errorf("controller: open %s: %w", id, err)
	}

	if c.noteID != "" {
		c.sched.Cancel(c.noteID)
	}
	c.machine.Reset()
	c.noteID, c.title, c.typ, c.doc = "", "", "", nil

	if note != nil {
		c.noteID = note.ID
		c.title = note.Title
		c.typ = note.Type
		if note.Type == models.TypeCanvas {
			doc := canvas.New(c.cfg.Limits)
			if note.Canvas != nil {
				doc = note.Canvas.WithLimits(c.cfg.Limits)
			}
			c.doc = &doc
		}
	}

	c.logger.Debug("controller: opened", slog.String("note", c.noteID), slog.String("type", string(c.typ)))
	return c.state(), nil
}

// Close cancels the active note's pending save without writing it.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.noteID != "" {
		c.sched.Cancel(c.noteID)
	}
}

// ActiveNoteID returns the id of the open note.
func (c *Controller) ActiveNoteID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.noteID
}

// State returns a snapshot of the open note.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

// HandleEvent runs ev through the interaction machine. A click on a
// note-reference node opens the referenced note.
func (c *Controller) HandleEvent(ctx context.Context, ev interaction.Event) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.doc == nil {
		return Result{State: c.state()}, fmt.Errorf("controller: event: %w", apperr.ErrNotCanvas)
	}

	eff := c.machine.Handle(*c.doc, ev)
	if eff.Changed {
		c.commit(eff.Doc)
	}
	res := Result{Changed: eff.Changed, PreventDefault: eff.PreventDefault}

	if eff.NavigateTo != "" {
		st, err := c.open(ctx, eff.NavigateTo)
		res.State = st
		if err != nil {
			return res, err
		}
		res.NavigatedTo = eff.NavigateTo
		return res, nil
	}
	res.State = c.state()
	return res, nil
}

// AddTextNode adds a text node. An empty label gets the placeholder.
func (c *Controller) AddTextNode(label string, p Placement) (State, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addNode(canvas.NodeSpec{Kind: canvas.KindText, Label: label}, p)
}

// AddNoteReferenceNode adds a node pointing at another Markdown note. The
// target must exist and must be neither a canvas nor the open note.
func (c *Controller) AddNoteReferenceNode(ctx context.Context, noteID string, p Placement) (State, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.doc == nil {
		return c.state(), "", fmt.Errorf("controller: add reference: %w", apperr.ErrNotCanvas)
	}
	if noteID == c.noteID {
		return c.state(), "", fmt.Errorf("controller: canvas cannot reference itself: %w", apperr.ErrInvalidReference)
	}
	ref, err := c.store.GetNote(ctx, noteID)
	if err != nil {
		return c.state(), "", fmt.Errorf("controller: add reference: %w", err)
	}
	if ref.Type == models.TypeCanvas {
		return c.state(), "", fmt.Errorf("controller: %s is a canvas: %w", noteID, apperr.ErrInvalidReference)
	}
	return c.addNode(canvas.NodeSpec{
		Kind:   canvas.KindNoteRef,
		NoteID: ref.ID,
		Label:  "Note: " + ref.Title,
	}, p)
}

// AddImageNode adds an image node. The URL is trimmed and must not be empty.
func (c *Controller) AddImageNode(url string, p Placement) (State, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	url = strings.TrimSpace(url)
	if url == "" {
		return c.state(), "", fmt.Errorf("controller: image url is empty: %w", apperr.ErrInvalidInput)
	}
	return c.addNode(canvas.NodeSpec{Kind: canvas.KindImage, ImageURL: url}, p)
}

// Connect adds an edge between two nodes of the open canvas.
func (c *Controller) Connect(source, target string) (State, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.doc == nil {
		return c.state(), "", fmt.Errorf("controller: connect: %w", apperr.ErrNotCanvas)
	}
	doc, id, err := c.doc.AddEdge(source, target)
	if err != nil {
		return c.state(), "", err
	}
	c.commit(doc)
	return c.state(), id, nil
}

// RemoveNode deletes a node and its edges.
func (c *Controller) RemoveNode(id string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.doc == nil {
		return c.state(), fmt.Errorf("controller: remove node: %w", apperr.ErrNotCanvas)
	}
	if _, ok := c.doc.Node(id); !ok {
		return c.state(), fmt.Errorf("controller: node %s: %w", id, apperr.ErrNotFound)
	}
	if c.machine.Selected() == id || c.machine.ActiveNode() == id {
		c.machine.Reset()
	}
	c.commit(c.doc.RemoveNode(id))
	return c.state(), nil
}

// RemoveEdge deletes an edge.
func (c *Controller) RemoveEdge(id string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.doc == nil {
		return c.state(), fmt.Errorf("controller: remove edge: %w", apperr.ErrNotCanvas)
	}
	if _, ok := c.doc.Edge(id); !ok {
		return c.state(), fmt.Errorf("controller: edge %s: %w", id, apperr.ErrNotFound)
	}
	c.commit(c.doc.RemoveEdge(id))
	return c.state(), nil
}

// SaveNow writes the open canvas immediately and waits for the result.
func (c *Controller) SaveNow(ctx context.Context) error {
	c.mu.Lock()
	if c.doc == nil {
		c.mu.Unlock()
		return fmt.Errorf("controller: save: %w", apperr.ErrNotCanvas)
	}
	id, doc := c.noteID, *c.doc
	c.sched.Schedule(id, doc)
	c.mu.Unlock()

	return c.sched.FlushNow(ctx, id)
}

// ReferenceCandidates lists the notes the open canvas may reference.
func (c *Controller) ReferenceCandidates(ctx context.Context) ([]models.NoteListItem, error) {
	return c.store.ReferenceCandidates(ctx, c.ActiveNoteID())
}

func (c *Controller) addNode(spec canvas.NodeSpec, p Placement) (State, string, error) {
	if c.doc == nil {
		return c.state(), "", fmt.Errorf("controller: add node: %w", apperr.ErrNotCanvas)
	}
	doc, id, err := c.doc.AddNode(spec, c.resolve(p))
	if err != nil {
		return c.state(), "", err
	}
	c.commit(doc)
	return c.state(), id, nil
}

func (c *Controller) resolve(p Placement) geometry.Point {
	if p.At != nil {
		return *p.At
	}
	screen := p.Screen
	if screen.IsZero() {
		screen = c.cfg.Screen
	}
	return geometry.VisibleCenter(c.doc.ViewportOrDefault(), screen)
}

// commit stores doc as the current document and schedules its save.
func (c *Controller) commit(doc canvas.Document) {
	c.doc = &doc
	c.sched.Schedule(c.noteID, doc)
}

func (c *Controller) state() State {
	st := State{
		NoteID:   c.noteID,
		Title:    c.title,
		Type:     c.typ,
		Mode:     c.machine.Mode().String(),
		Selected: c.machine.Selected(),
	}
	if c.doc != nil {
		doc := *c.doc
		st.Canvas = &doc
	}
	if d, ok := c.machine.Draft(); ok {
		st.Draft = &d
	}
	return st
}
