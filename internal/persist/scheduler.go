// Package persist debounces and sequences canvas writes to the note store.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/kenaz-canvas/internal/canvas"
)

var (
	// ErrPersistence wraps every failed store write.
	ErrPersistence = errors.New("persistence failure")
	// ErrClosed is returned once the scheduler has been closed.
	ErrClosed = errors.New("persist: scheduler closed")
	// ErrCanceled is returned to FlushNow callers whose queued write was cancelled.
	ErrCanceled = errors.New("persist: save canceled")
)

// Saver writes a canvas document for a note.
type Saver interface {
	SaveCanvasNote(ctx context.Context, noteID string, doc canvas.Document, updatedAt time.Time) error
}

// SaveFunc adapts a function to Saver.
type SaveFunc func(ctx context.Context, noteID string, doc canvas.Document, updatedAt time.Time) error

// SaveCanvasNote calls f.
func (f SaveFunc) SaveCanvasNote(ctx context.Context, noteID string, doc canvas.Document, updatedAt time.Time) error {
	return f(ctx, noteID, doc, updatedAt)
}

// ActiveNoteFunc reports the currently active note id.
type ActiveNoteFunc func() string

// Options configures a Scheduler.
type Options struct {
	// Debounce is the quiet period after the last Schedule before a write.
	Debounce time.Duration
	// WriteTimeout bounds each store write.
	WriteTimeout time.Duration
	// Active is consulted when a debounce timer fires. Nil means every note
	// counts as active.
	Active ActiveNoteFunc
	// OnSaved and OnFailure run on the writing goroutine after each write.
	OnSaved   func(noteID string, updatedAt time.Time)
	OnFailure func(noteID string, err error)
	Logger    *slog.Logger
	Now       func() time.Time
}

// command is a caller request. Commands travel over one channel so the loop
// sees them in the order they were issued.
type command interface{ noteKey() string }

type scheduleReq struct {
	noteID string
	doc    canvas.Document
}

type flushReq struct {
	noteID string
	resp   chan error
}

type cancelReq struct {
	noteID string
}

type fireMsg struct {
	noteID string
	gen    uint64
}

type doneMsg struct {
	noteID string
	err    error
}

type stateReq struct {
	noteID string
	resp   chan entryState
}

func (r scheduleReq) noteKey() string { return r.noteID }
func (r flushReq) noteKey() string    { return r.noteID }
func (r cancelReq) noteKey() string   { return r.noteID }
func (r stateReq) noteKey() string    { return r.noteID }

type entryState struct {
	pending  bool
	inFlight bool
}

// entry is the per-note state. Only the loop goroutine touches it.
type entry struct {
	timer *time.Timer
	gen   uint64

	// pending is the newest snapshot not yet handed to a write.
	pending *canvas.Document
	// queued starts a write with pending as soon as the in-flight one ends.
	queued bool
	// manual marks a queued write requested by FlushNow; it skips the
	// active-note check.
	manual bool

	inFlight bool
	// waiters resolve with the write that will carry pending; flight with the
	// write currently running.
	waiters []chan error
	flight  []chan error
}

func (e *entry) idle() bool {
	return e.pending == nil && !e.inFlight && e.timer == nil && len(e.waiters) == 0
}

// Scheduler coalesces canvas saves per note and allows at most one write per
// note at a time.
//
// Concurrency model: like sse.Broker, a single loop goroutine owns all per-note
// state and public methods send it commands over one channel, so a Schedule
// followed by FlushNow or Cancel is seen in that order. Writes run on their own
// goroutines and report back through doneCh.
type Scheduler struct {
	saver Saver
	opts  Options

	cmdCh  chan command
	fireCh chan fireMsg
	doneCh chan doneMsg

	writes  sync.WaitGroup
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New starts a scheduler writing through saver.
func New(saver Saver, opts Options) *Scheduler {
	if opts.Debounce <= 0 {
		opts.Debounce = time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Scheduler{
		saver:   saver,
		opts:    opts,
		cmdCh:   make(chan command, 64),
		fireCh:  make(chan fireMsg, 16),
		doneCh:  make(chan doneMsg, 16),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Scheduler) run() {
	defer close(s.stopped)

	entries := make(map[string]*entry)
	get := func(id string) *entry {
		e, ok := entries[id]
		if !ok {
			e = &entry{}
			entries[id] = e
		}
		return e
	}
	release := func(id string, e *entry) {
		if e.idle() {
			delete(entries, id)
		}
	}
	stopTimer := func(e *entry) {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.gen++
	}

	for {
		select {
		case <-s.stopCh:
			for _, e := range entries {
				if e.timer != nil {
					e.timer.Stop()
				}
				resolve(e.waiters, ErrClosed)
				resolve(e.flight, ErrClosed)
			}
			return

		case cmd := <-s.cmdCh:
			id := cmd.noteKey()
			switch req := cmd.(type) {
			case scheduleReq:
				e := get(id)
				doc := req.doc
				e.pending = &doc
				stopTimer(e)
				gen := e.gen
				e.timer = time.AfterFunc(s.opts.Debounce, func() {
					select {
					case s.fireCh <- fireMsg{noteID: id, gen: gen}:
					case <-s.stopped:
					}
				})

			case flushReq:
				e := get(id)
				stopTimer(e)
				switch {
				case e.pending != nil && e.inFlight:
					e.waiters = append(e.waiters, req.resp)
					e.queued = true
					e.manual = true
				case e.pending != nil:
					e.waiters = append(e.waiters, req.resp)
					s.start(id, e)
				case e.inFlight:
					e.flight = append(e.flight, req.resp)
				default:
					req.resp <- nil
				}
				release(id, e)

			case cancelReq:
				e, ok := entries[id]
				if !ok {
					continue
				}
				stopTimer(e)
				e.pending = nil
				e.queued = false
				e.manual = false
				resolve(e.waiters, ErrCanceled)
				e.waiters = nil
				release(id, e)

			case stateReq:
				var st entryState
				if e, ok := entries[id]; ok {
					st = entryState{pending: e.pending != nil, inFlight: e.inFlight}
				}
				req.resp <- st
			}

		case msg := <-s.fireCh:
			e, ok := entries[msg.noteID]
			if !ok || msg.gen != e.gen {
				continue
			}
			e.timer = nil
			switch {
			case e.pending == nil, e.queued && e.manual:
			case !s.isActive(msg.noteID):
				s.opts.Logger.Debug("persist: dropped save for inactive note",
					slog.String("note", msg.noteID))
				e.pending = nil
				e.queued = false
			case e.inFlight:
				e.queued = true
			default:
				s.start(msg.noteID, e)
			}
			release(msg.noteID, e)

		case msg := <-s.doneCh:
			e, ok := entries[msg.noteID]
			if !ok {
				continue
			}
			e.inFlight = false
			resolve(e.flight, msg.err)
			e.flight = nil
			if e.queued && e.pending != nil {
				if e.manual || s.isActive(msg.noteID) {
					s.start(msg.noteID, e)
				} else {
					e.pending = nil
					resolve(e.waiters, nil)
					e.waiters = nil
				}
			}
			e.queued = false
			e.manual = false
			release(msg.noteID, e)

		}
	}
}

// start hands the pending snapshot to a write goroutine. Called from the loop.
func (s *Scheduler) start(id string, e *entry) {
	doc := *e.pending
	e.pending = nil
	e.queued = false
	e.manual = false
	e.inFlight = true
	e.flight = e.waiters
	e.waiters = nil

	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		err := s.write(id, doc)
		select {
		case s.doneCh <- doneMsg{noteID: id, err: err}:
		case <-s.stopped:
		}
	}()
}

func (s *Scheduler) write(id string, doc canvas.Document) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
	defer cancel()

	at := s.opts.Now()
	if err := s.saver.SaveCanvasNote(ctx, id, doc, at); err != nil {
		err = fmt.Errorf("persist: save %s: %w: %w", id, ErrPersistence, err)
		s.opts.Logger.Warn("persist: save failed",
			slog.String("note", id),
			slog.String("error", err.Error()))
		if s.opts.OnFailure != nil {
			s.opts.OnFailure(id, err)
		}
		return err
	}

	s.opts.Logger.Debug("persist: saved",
		slog.String("note", id),
		slog.Int("nodes", doc.Len()))
	if s.opts.OnSaved != nil {
		s.opts.OnSaved(id, at)
	}
	return nil
}

func (s *Scheduler) isActive(id string) bool {
	if s.opts.Active == nil {
		return true
	}
	return s.opts.Active() == id
}

func resolve(chs []chan error, err error) {
	for _, ch := range chs {
		ch <- err
	}
}

// Schedule records doc as the latest snapshot for noteID and restarts the
// debounce timer.
func (s *Scheduler) Schedule(noteID string, doc canvas.Document) {
	if s.closed.Load() {
		return
	}
	select {
	case s.cmdCh <- scheduleReq{noteID: noteID, doc: doc}:
	case <-s.stopped:
	}
}

// FlushNow writes the pending snapshot for noteID immediately, waiting behind
// an in-flight write if there is one, and returns the write's result. With
// nothing pending it waits for any in-flight write and otherwise returns nil.
func (s *Scheduler) FlushNow(ctx context.Context, noteID string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	resp := make(chan error, 1)
	select {
	case s.cmdCh <- flushReq{noteID: noteID, resp: resp}:
	case <-s.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the debounce timer for noteID and discards its pending
// snapshot. A write already in flight still completes.
func (s *Scheduler) Cancel(noteID string) {
	if s.closed.Load() {
		return
	}
	select {
	case s.cmdCh <- cancelReq{noteID: noteID}:
	case <-s.stopped:
	}
}

// Pending reports whether noteID has a snapshot waiting to be written.
func (s *Scheduler) Pending(noteID string) bool {
	return s.state(noteID).pending
}

// InFlight reports whether a write for noteID is running.
func (s *Scheduler) InFlight(noteID string) bool {
	return s.state(noteID).inFlight
}

func (s *Scheduler) state(noteID string) entryState {
	if s.closed.Load() {
		return entryState{}
	}
	resp := make(chan entryState, 1)
	select {
	case s.cmdCh <- stateReq{noteID: noteID, resp: resp}:
	case <-s.stopped:
		return entryState{}
	}
	select {
	case st := <-resp:
		return st
	case <-s.stopped:
		return entryState{}
	}
}

// Close stops every timer without writing pending snapshots, then waits for
// in-flight writes to finish.
func (s *Scheduler) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	<-s.stopped
	s.writes.Wait()
}
