// Package sse streams note and canvas notifications to browser clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event types.
const (
	NoteCreated     = "note.created"
	NoteUpdated     = "note.updated"
	NoteDeleted     = "note.deleted"
	GraphUpdated    = "graph.updated"
	NoteActivated   = "note.activated"
	CanvasSaved     = "canvas.saved"
	CanvasSaveError = "canvas.save_failed"
)

const (
	clientBuffer     = 64
	defaultHistory   = 32
	defaultHeartbeat = 25 * time.Second
)

// Event is one notification.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// CanvasSavedData is the payload of canvas.saved.
type CanvasSavedData struct {
	NoteID    string    `json:"note_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveFailedData is the payload of canvas.save_failed.
type SaveFailedData struct {
	NoteID string `json:"note_id"`
	Error  string `json:"error"`
}

// Option configures a Broker.
type Option func(*Broker)

// WithHistory sets how many recent events are kept for clients that
// reconnect with Last-Event-ID.
func WithHistory(n int) Option {
	return func(b *Broker) { b.historySize = n }
}

// WithHeartbeat sets the interval of keep-alive comments on idle streams.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// frame is an encoded event with its stream id.
type frame struct {
	id  uint64
	raw []byte
}

type subscription struct {
	ch chan []byte
	// replay, when set, asks for every retained event newer than after.
	replay bool
	after  uint64
}

// vaultChange is a file-level change reported by the watcher. Vault changes
// also drive the throttled graph.updated event.
type vaultChange struct {
	kind string
	path string
}

// Broker fans events out to connected clients.
//
// A single loop goroutine owns the client set, the event id counter, the
// replay history and the graph throttle timestamp; public methods talk to it
// over channels.
type Broker struct {
	graphMin    time.Duration
	historySize int
	heartbeat   time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan vaultChange
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. graphThrottle is the minimum spacing of
// graph.updated events.
func NewBroker(graphThrottle time.Duration, opts ...Option) *Broker {
	b := &Broker{
		graphMin:      graphThrottle,
		historySize:   defaultHistory,
		heartbeat:     defaultHeartbeat,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan vaultChange, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.graphMin <= 0 {
		b.graphMin = 2 * time.Second
	}
	b.historySize = min(max(b.historySize, 0), clientBuffer)

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	history := make([]frame, 0, b.historySize)
	var (
		lastID    uint64
		lastGraph time.Time
	)

	emit := func(ev Event) {
		raw, err := encode(lastID+1, ev)
		if err != nil {
			return
		}
		lastID++
		if b.historySize > 0 {
			if len(history) == b.historySize {
				history = append(history[:0], history[1:]...)
			}
			history = append(history, frame{id: lastID, raw: raw})
		}
		for ch := range clients {
			send(ch, raw)
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			if sub.replay {
				for _, f := range history {
					if f.id > sub.after {
						send(sub.ch, f.raw)
					}
				}
			}
			clients[sub.ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.publishCh:
			emit(ev)

		case c := <-b.changeCh:
			typ, ok := changeTypes[c.kind]
			if !ok {
				continue
			}
			emit(Event{Type: typ, Data: map[string]string{"path": c.path}})

			if now := time.Now(); now.Sub(lastGraph) >= b.graphMin {
				lastGraph = now
				emit(Event{Type: GraphUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

var changeTypes = map[string]string{
	"created": NoteCreated,
	"updated": NoteUpdated,
	"deleted": NoteDeleted,
}

// send drops the frame for a client whose buffer is full.
func send(ch chan []byte, raw []byte) {
	select {
	case ch <- raw:
	default:
	}
}

func encode(id uint64, ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", id, ev.Type, payload), nil
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client that receives events published from now on.
func (b *Broker) Subscribe() chan []byte {
	return b.subscribe(subscription{})
}

// SubscribeAfter adds a client and first replays the retained events with an
// id greater than lastID.
func (b *Broker) SubscribeAfter(lastID uint64) chan []byte {
	return b.subscribe(subscription{replay: true, after: lastID})
}

func (b *Broker) subscribe(sub subscription) chan []byte {
	sub.ch = make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(sub.ch)
		return sub.ch
	}

	select {
	case b.subscribeCh <- sub:
	case <-b.stopped:
		close(sub.ch)
	}
	return sub.ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}

// PublishNoteEvent reports a vault file change ("created", "updated" or
// "deleted") and, throttled, graph.updated.
func (b *Broker) PublishNoteEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- vaultChange{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// PublishActivated announces the active note. An empty id means none.
func (b *Broker) PublishActivated(noteID string) {
	b.Publish(Event{Type: NoteActivated, Data: map[string]string{"note_id": noteID}})
}

// PublishCanvasSaved announces a completed canvas write.
func (b *Broker) PublishCanvasSaved(noteID string, updatedAt time.Time) {
	b.Publish(Event{Type: CanvasSaved, Data: CanvasSavedData{NoteID: noteID, UpdatedAt: updatedAt}})
}

// PublishSaveFailed announces a failed canvas write.
func (b *Broker) PublishSaveFailed(noteID string, err error) {
	b.Publish(Event{Type: CanvasSaveError, Data: SaveFailedData{NoteID: noteID, Error: err.Error()}})
}

// ServeHTTP is the SSE endpoint handler. A Last-Event-ID header replays
// the events the client missed while disconnected, as far as they are
// still retained.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var ch chan []byte
	if lastID, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		ch = b.SubscribeAfter(lastID)
	} else {
		ch = b.Subscribe()
	}
	defer b.Unsubscribe(ch)

	var beat <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		beat = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-beat:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
