// Package interaction turns pointer and keyboard events on a canvas into
// document edits. It holds the gesture mode and the node selection; the
// document itself is passed in and returned with every event.
package interaction

import (
	"github.com/starford/kenaz-canvas/internal/canvas"
	"github.com/starford/kenaz-canvas/internal/geometry"
)

// EventType names an input event delivered by the rendering binding.
type EventType string

// Event types.
const (
	PointerDown  EventType = "pointer_down"
	PointerMove  EventType = "pointer_move"
	PointerUp    EventType = "pointer_up"
	PointerLeave EventType = "pointer_leave"
	Wheel        EventType = "wheel"
	DoubleClick  EventType = "double_click"
	KeyDown      EventType = "key_down"
	// TextInput replaces the label draft with Event.Text.
	TextInput EventType = "text_input"
	// Commit confirms the label draft.
	Commit EventType = "commit"
	// Blur is the label editor losing focus; it commits like Commit.
	Blur EventType = "blur"
)

// TargetKind says what part of the canvas an event hit.
type TargetKind string

// Target kinds.
const (
	OnBackground       TargetKind = "background"
	OnNode             TargetKind = "node"
	OnResizeHandle     TargetKind = "resize_handle"
	OnConnectionHandle TargetKind = "connection_handle"
)

// Target is the innermost element under the pointer. The binding delivers
// exactly one target per event, so a press on a node never reaches the
// background handler as well.
type Target struct {
	Kind   TargetKind `json:"kind"`
	NodeID string     `json:"node_id,omitempty"`
}

// Background is the empty-canvas target.
var Background = Target{Kind: OnBackground}

// NodeTarget returns the body target of node id.
func NodeTarget(id string) Target { return Target{Kind: OnNode, NodeID: id} }

// Event is one input event. Screen is relative to the canvas element.
type Event struct {
	Type   EventType      `json:"type"`
	Target Target         `json:"target"`
	Screen geometry.Point `json:"screen"`
	// DeltaY is the wheel delta; positive scrolls down (zooms out).
	DeltaY float64 `json:"delta_y,omitempty"`
	Key    string  `json:"key,omitempty"`
	Text   string  `json:"text,omitempty"`
}

// Keys the machine reacts to.
const (
	KeyDelete    = "Delete"
	KeyBackspace = "Backspace"
	KeyEscape    = "Escape"
)

// Effect is the outcome of handling one event.
type Effect struct {
	Doc canvas.Document
	// Changed is set when Doc differs from the input document.
	Changed bool
	// PreventDefault asks the binding to suppress native handling (wheel scroll).
	PreventDefault bool
	// NavigateTo is a note id to open, set when a note-reference node is clicked.
	NavigateTo string
}
