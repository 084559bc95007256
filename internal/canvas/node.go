// Package canvas holds the in-memory model of one canvas note: nodes, edges
// and the last known viewport. Every edit returns a new Document.
package canvas

import (
	"fmt"

	"github.com/starford/kenaz-canvas/internal/apperr"
	"github.com/starford/kenaz-canvas/internal/geometry"
)

// Kind is the variant tag of a node.
type Kind string

// Node kinds.
const (
	KindText    Kind = "text"
	KindNoteRef Kind = "note-reference"
	KindImage   Kind = "image"
)

// PlaceholderLabel is shown on text nodes created without content.
const PlaceholderLabel = "[Double-click to edit]"

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindNoteRef, KindImage:
		return true
	}
	return false
}

// DefaultSize returns the size a node of kind k gets when none is requested.
func (k Kind) DefaultSize() geometry.Size {
	switch k {
	case KindText:
		return geometry.Size{Width: 200, Height: 100}
	case KindNoteRef, KindImage:
		return geometry.Size{Width: 250, Height: 200}
	}
	return geometry.Size{}
}

// Payload is the kind-specific content of a node. The set of implementations
// is closed: TextPayload, NoteRefPayload and ImagePayload.
type Payload interface {
	Kind() Kind
	payload()
}

// TextPayload is free text edited by the user.
type TextPayload struct {
	Label string
}

// NoteRefPayload points at another note in the store. Label caches its title.
type NoteRefPayload struct {
	NoteID string
	Label  string
}

// ImagePayload displays an image by URL.
type ImagePayload struct {
	ImageURL string
}

func (TextPayload) Kind() Kind    { return KindText }
func (NoteRefPayload) Kind() Kind { return KindNoteRef }
func (ImagePayload) Kind() Kind   { return KindImage }

func (TextPayload) payload()    {}
func (NoteRefPayload) payload() {}
func (ImagePayload) payload()   {}

// Node is a positioned item on the canvas.
type Node struct {
	ID       string
	Position geometry.Point
	// Size is zero when the renderer should pick the default for the kind.
	Size    geometry.Size
	Payload Payload
}

// Kind returns the node's variant tag.
func (n Node) Kind() Kind {
	if n.Payload == nil {
		return ""
	}
	return n.Payload.Kind()
}

// Label returns the display label of the node, if its kind has one.
func (n Node) Label() string {
	switch p := n.Payload.(type) {
	case TextPayload:
		return p.Label
	case NoteRefPayload:
		return p.Label
	}
	return ""
}

// NodeSpec describes a node to create. Only the fields relevant to Kind are read.
type NodeSpec struct {
	Kind     Kind
	Label    string
	NoteID   string
	ImageURL string
	// Size overrides the kind default when non-zero.
	Size geometry.Size
}

// NewPayload builds the payload for spec.Kind.
func NewPayload(spec NodeSpec) (Payload, error) {
	switch spec.Kind {
	case KindText:
		label := spec.Label
		if label == "" {
			label = PlaceholderLabel
		}
		return TextPayload{Label: label}, nil
	case KindNoteRef:
		label := spec.Label
		if label == "" {
			label = "Note: " + spec.NoteID
		}
		return NoteRefPayload{NoteID: spec.NoteID, Label: label}, nil
	case KindImage:
		return ImagePayload{ImageURL: spec.ImageURL}, nil
	}
	return nil, fmt.Errorf("canvas: kind %q: %w", spec.Kind, apperr.ErrInvalidKind)
}

// LineStyle is the stroke pattern of an edge.
type LineStyle string

// Line styles.
const (
	LineSolid  LineStyle = "solid"
	LineDashed LineStyle = "dashed"
	LineDotted LineStyle = "dotted"
)

// DefaultEdgeColor is the neutral gray used for new edges.
const DefaultEdgeColor = "#b3b3b3"

// EdgeStyle is the visual style of an edge.
type EdgeStyle struct {
	LineStyle LineStyle `json:"lineStyle"`
	Color     string    `json:"color"`
}

// DefaultEdgeStyle is applied to new edges and to persisted edges missing a style.
var DefaultEdgeStyle = EdgeStyle{LineStyle: LineSolid, Color: DefaultEdgeColor}

// Edge connects two nodes. Source and target may be the same node.
type Edge struct {
	ID           string
	SourceNodeID string
	TargetNodeID string
	Style        EdgeStyle
	Animated     bool
}

// Touches reports whether e has nodeID as either endpoint.
func (e Edge) Touches(nodeID string) bool {
	return e.SourceNodeID == nodeID || e.TargetNodeID == nodeID
}
