package canvas

import (
	"bytes"
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/kenaz-canvas/internal/apperr"
	"github.com/starford/kenaz-canvas/internal/geometry"
)

// wireDocument is the persisted shape exchanged with the note store.
type wireDocument struct {
	Nodes    []wireNode         `json:"nodes"`
	Edges    []wireEdge         `json:"edges"`
	Viewport *geometry.Viewport `json:"viewport,omitempty"`
}

type wireNode struct {
	ID       string         `json:"id"`
	Position geometry.Point `json:"position"`
	Size     *geometry.Size `json:"size,omitempty"`
	Kind     Kind           `json:"kind"`
	Label    string         `json:"label,omitempty"`
	NoteID   string         `json:"noteId,omitempty"`
	ImageURL string         `json:"imageUrl,omitempty"`
}

// Validate checks the fields every node must carry.
func (n wireNode) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Required),
		validation.Field(&n.Kind, validation.Required),
	)
}

type wireEdge struct {
	ID           string     `json:"id"`
	SourceNodeID string     `json:"sourceNodeId"`
	TargetNodeID string     `json:"targetNodeId"`
	Style        *EdgeStyle `json:"style,omitempty"`
	Animated     bool       `json:"animated"`
}

// Validate checks the fields every edge must carry.
func (e wireEdge) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.ID, validation.Required),
		validation.Field(&e.SourceNodeID, validation.Required),
		validation.Field(&e.TargetNodeID, validation.Required),
	)
}

// MarshalJSON encodes the persisted shape. Edges whose endpoints are missing
// are left out.
func (d Document) MarshalJSON() ([]byte, error) {
	w := wireDocument{
		Nodes:    make([]wireNode, 0, len(d.nodes)),
		Edges:    make([]wireEdge, 0, len(d.edges)),
		Viewport: d.viewport,
	}
	for _, n := range d.nodes {
		wn := wireNode{ID: n.ID, Position: n.Position, Kind: n.Kind()}
		if !n.Size.IsZero() {
			s := n.Size
			wn.Size = &s
		}
		switch p := n.Payload.(type) {
		case TextPayload:
			wn.Label = p.Label
		case NoteRefPayload:
			wn.NoteID = p.NoteID
			wn.Label = p.Label
		case ImagePayload:
			wn.ImageURL = p.ImageURL
		}
		w.Nodes = append(w.Nodes, wn)
	}
	for _, e := range d.edges {
		if d.nodeIndex(e.SourceNodeID) < 0 || d.nodeIndex(e.TargetNodeID) < 0 {
			continue
		}
		style := e.Style
		w.Edges = append(w.Edges, wireEdge{
			ID:           e.ID,
			SourceNodeID: e.SourceNodeID,
			TargetNodeID: e.TargetNodeID,
			Style:        &style,
			Animated:     e.Animated,
		})
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the persisted shape, keeping the receiver's limits.
func (d *Document) UnmarshalJSON(data []byte) error {
	out, err := Decode(data, d.limits)
	if err != nil {
		return err
	}
	*d = out
	return nil
}

// Decode parses persisted canvas data. Empty or null data yields an empty
// document. Duplicate ids keep their first occurrence; missing edge styles get
// the defaults. An unknown node kind fails with apperr.ErrInvalidKind.
func Decode(data []byte, limits Limits) (Document, error) {
	doc := New(limits)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return doc, nil
	}

	var w wireDocument
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return doc, fmt.Errorf("canvas: decode: %w", err)
	}

	seen := make(map[string]struct{}, len(w.Nodes))
	for i, wn := range w.Nodes {
		if err := wn.Validate(); err != nil {
			return doc, fmt.Errorf("canvas: node %d: %w", i, err)
		}
		if _, dup := seen[wn.ID]; dup {
			continue
		}
		p, err := decodePayload(wn)
		if err != nil {
			return doc, err
		}
		n := Node{ID: wn.ID, Position: wn.Position, Payload: p}
		if wn.Size != nil {
			n.Size = *wn.Size
		}
		seen[wn.ID] = struct{}{}
		doc.nodes = append(doc.nodes, n)
	}

	seenEdges := make(map[string]struct{}, len(w.Edges))
	for i, we := range w.Edges {
		if err := we.Validate(); err != nil {
			return doc, fmt.Errorf("canvas: edge %d: %w", i, err)
		}
		if _, dup := seenEdges[we.ID]; dup {
			continue
		}
		seenEdges[we.ID] = struct{}{}
		style := DefaultEdgeStyle
		if we.Style != nil {
			if we.Style.LineStyle != "" {
				style.LineStyle = we.Style.LineStyle
			}
			if we.Style.Color != "" {
				style.Color = we.Style.Color
			}
		}
		doc.edges = append(doc.edges, Edge{
			ID:           we.ID,
			SourceNodeID: we.SourceNodeID,
			TargetNodeID: we.TargetNodeID,
			Style:        style,
			Animated:     we.Animated,
		})
	}

	if w.Viewport != nil {
		v := *w.Viewport
		doc.viewport = &v
	}
	return doc, nil
}

// decodePayload keeps persisted labels verbatim, empty ones included.
func decodePayload(wn wireNode) (Payload, error) {
	switch wn.Kind {
	case KindText:
		return TextPayload{Label: wn.Label}, nil
	case KindNoteRef:
		return NoteRefPayload{NoteID: wn.NoteID, Label: wn.Label}, nil
	case KindImage:
		return ImagePayload{ImageURL: wn.ImageURL}, nil
	}
	return nil, fmt.Errorf("canvas: kind %q: %w", wn.Kind, apperr.ErrInvalidKind)
}
