package canvas

import (
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"

	"github.com/starford/kenaz-canvas/internal/apperr"
	"github.com/starford/kenaz-canvas/internal/geometry"
)

// newID generates node and edge ids.
var newID = uuid.NewString

// Limits are the minimum node dimensions enforced by ResizeNode.
type Limits struct {
	MinWidth  float64
	MinHeight float64
}

// DefaultLimits applies when a document carries no explicit limits.
var DefaultLimits = Limits{MinWidth: 50, MinHeight: 30}

func (l Limits) orDefault() Limits {
	if l.MinWidth <= 0 || l.MinHeight <= 0 {
		return DefaultLimits
	}
	return l
}

// Clamp raises s to at least the minimum dimensions.
func (l Limits) Clamp(s geometry.Size) geometry.Size {
	l = l.orDefault()
	return geometry.Size{
		Width:  math.Max(s.Width, l.MinWidth),
		Height: math.Max(s.Height, l.MinHeight),
	}
}

// Document is one canvas note's nodes, edges and viewport. The zero value is
// an empty document. Methods never modify the receiver; edits return a new
// Document that shares no mutable state with the old one.
type Document struct {
	nodes    []Node
	edges    []Edge
	viewport *geometry.Viewport
	limits   Limits
}

// New returns an empty document enforcing the given limits.
func New(limits Limits) Document {
	return Document{limits: limits}
}

// WithLimits returns a copy of d enforcing limits.
func (d Document) WithLimits(limits Limits) Document {
	out := d.clone()
	out.limits = limits
	return out
}

// Limits returns the effective size limits.
func (d Document) Limits() Limits { return d.limits.orDefault() }

// Nodes returns the nodes in insertion order.
func (d Document) Nodes() []Node { return slices.Clone(d.nodes) }

// Edges returns the edges in insertion order.
func (d Document) Edges() []Edge { return slices.Clone(d.edges) }

// Len returns the number of nodes.
func (d Document) Len() int { return len(d.nodes) }

// Node looks up a node by id.
func (d Document) Node(id string) (Node, bool) {
	if i := d.nodeIndex(id); i >= 0 {
		return d.nodes[i], true
	}
	return Node{}, false
}

// Edge looks up an edge by id.
func (d Document) Edge(id string) (Edge, bool) {
	if i := d.edgeIndex(id); i >= 0 {
		return d.edges[i], true
	}
	return Edge{}, false
}

// Viewport returns the stored viewport and whether one is set.
func (d Document) Viewport() (geometry.Viewport, bool) {
	if d.viewport == nil {
		return geometry.Viewport{}, false
	}
	return *d.viewport, true
}

// ViewportOrDefault returns the stored viewport, or the identity viewport.
func (d Document) ViewportOrDefault() geometry.Viewport {
	if v, ok := d.Viewport(); ok {
		return v
	}
	return geometry.DefaultViewport
}

// AddNode appends a node built from spec at pos and returns its id.
func (d Document) AddNode(spec NodeSpec, pos geometry.Point) (Document, string, error) {
	p, err := NewPayload(spec)
	if err != nil {
		return d, "", err
	}
	size := spec.Size
	if size.IsZero() {
		size = spec.Kind.DefaultSize()
	} else {
		size = d.Limits().Clamp(size)
	}
	n := Node{ID: newID(), Position: pos, Size: size, Payload: p}

	out := d.clone()
	out.nodes = append(out.nodes, n)
	return out, n.ID, nil
}

// UpdateNodePosition moves a node. A missing id leaves the document unchanged.
func (d Document) UpdateNodePosition(id string, pos geometry.Point) Document {
	return d.updateNode(id, func(n *Node) { n.Position = pos })
}

// ResizeNode sets a node's size, clamped to the document limits. A missing id
// leaves the document unchanged.
func (d Document) ResizeNode(id string, size geometry.Size) Document {
	clamped := d.Limits().Clamp(size)
	return d.updateNode(id, func(n *Node) { n.Size = clamped })
}

// UpdateNodeLabel replaces the label of a text node. Other kinds and missing
// ids leave the document unchanged.
func (d Document) UpdateNodeLabel(id, label string) Document {
	n, ok := d.Node(id)
	if !ok || n.Kind() != KindText {
		return d
	}
	return d.updateNode(id, func(n *Node) { n.Payload = TextPayload{Label: label} })
}

// RemoveNode deletes a node and every edge that touches it.
func (d Document) RemoveNode(id string) Document {
	i := d.nodeIndex(id)
	if i < 0 {
		return d
	}
	out := d.clone()
	out.nodes = slices.Delete(out.nodes, i, i+1)
	out.edges = slices.DeleteFunc(out.edges, func(e Edge) bool { return e.Touches(id) })
	return out
}

// AddEdge connects source to target with the default style.
func (d Document) AddEdge(source, target string) (Document, string, error) {
	for _, id := range []string{source, target} {
		if d.nodeIndex(id) < 0 {
			return d, "", fmt.Errorf("canvas: edge endpoint %q: %w", id, apperr.ErrDanglingReference)
		}
	}
	e := Edge{ID: newID(), SourceNodeID: source, TargetNodeID: target, Style: DefaultEdgeStyle}
	out := d.clone()
	out.edges = append(out.edges, e)
	return out, e.ID, nil
}

// RemoveEdge deletes an edge. A missing id leaves the document unchanged.
func (d Document) RemoveEdge(id string) Document {
	i := d.edgeIndex(id)
	if i < 0 {
		return d
	}
	out := d.clone()
	out.edges = slices.Delete(out.edges, i, i+1)
	return out
}

// SetViewport stores v verbatim.
func (d Document) SetViewport(v geometry.Viewport) Document {
	out := d.clone()
	out.viewport = &v
	return out
}

func (d Document) updateNode(id string, fn func(*Node)) Document {
	i := d.nodeIndex(id)
	if i < 0 {
		return d
	}
	out := d.clone()
	fn(&out.nodes[i])
	return out
}

func (d Document) nodeIndex(id string) int {
	return slices.IndexFunc(d.nodes, func(n Node) bool { return n.ID == id })
}

func (d Document) edgeIndex(id string) int {
	return slices.IndexFunc(d.edges, func(e Edge) bool { return e.ID == id })
}

func (d Document) clone() Document {
	out := Document{
		nodes:  slices.Clone(d.nodes),
		edges:  slices.Clone(d.edges),
		limits: d.limits,
	}
	if d.viewport != nil {
		v := *d.viewport
		out.viewport = &v
	}
	return out
}
