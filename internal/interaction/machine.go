package interaction

import (
	"math"

	"github.com/starford/kenaz-canvas/internal/canvas"
	"github.com/starford/kenaz-canvas/internal/geometry"
)

// Mode is the current gesture. Modes are mutually exclusive.
type Mode int

// Modes.
const (
	Idle Mode = iota
	Panning
	DraggingNode
	ResizingNode
	EditingLabel
	Connecting
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Panning:
		return "panning"
	case DraggingNode:
		return "dragging_node"
	case ResizingNode:
		return "resizing_node"
	case EditingLabel:
		return "editing_label"
	case Connecting:
		return "connecting"
	}
	return "unknown"
}

// Config tunes gesture handling.
type Config struct {
	Zoom geometry.ZoomLimits
	// WheelSensitivity converts wheel delta to zoom delta.
	WheelSensitivity float64
	// ClickTolerance is how far, in screen units, a press may travel and still
	// count as a click rather than a drag.
	ClickTolerance float64
}

// DefaultConfig returns the stock gesture settings.
func DefaultConfig() Config {
	return Config{
		Zoom:             geometry.DefaultZoomLimits,
		WheelSensitivity: 0.001,
		ClickTolerance:   3,
	}
}

// Machine is the canvas gesture state machine. It is not safe for
// concurrent use; callers serialize events.
type Machine struct {
	cfg Config

	mode     Mode
	selected string

	// Per-mode state; meaningful only while the matching mode is active.
	nodeID string
	grab   geometry.Point
	press  geometry.Point
	last   geometry.Point
	moved  bool
	aspect float64
	draft  string
}

// New returns an idle machine with no selection.
func New(cfg Config) *Machine {
	if cfg.WheelSensitivity == 0 {
		cfg.WheelSensitivity = DefaultConfig().WheelSensitivity
	}
	return &Machine{cfg: cfg}
}

// Mode returns the current gesture mode.
func (m *Machine) Mode() Mode { return m.mode }

// Selected returns the selected node id, or "" when nothing is selected.
func (m *Machine) Selected() string { return m.selected }

// ActiveNode returns the node the current gesture operates on.
func (m *Machine) ActiveNode() string { return m.nodeID }

// Draft returns the uncommitted label while a label edit is active.
func (m *Machine) Draft() (string, bool) {
	if m.mode != EditingLabel {
		return "", false
	}
	return m.draft, true
}

// Reset abandons any gesture and clears the selection.
func (m *Machine) Reset() {
	m.toIdle()
	m.selected = ""
}

// Handle applies ev to doc and reports the result.
func (m *Machine) Handle(doc canvas.Document, ev Event) Effect {
	switch ev.Type {
	case Wheel:
		return m.wheel(doc, ev)
	case KeyDown:
		return m.key(doc, ev)
	case TextInput:
		if m.mode == EditingLabel {
			m.draft = ev.Text
		}
		return Effect{Doc: doc}
	case Commit, Blur:
		if m.mode == EditingLabel {
			return m.commitDraft(doc)
		}
		return Effect{Doc: doc}
	case PointerDown:
		return m.pointerDown(doc, ev)
	case PointerMove:
		return m.pointerMove(doc, ev)
	case PointerUp:
		return m.pointerUp(doc, ev)
	case PointerLeave:
		if m.mode != EditingLabel {
			m.toIdle()
		}
		return Effect{Doc: doc}
	case DoubleClick:
		return m.doubleClick(doc, ev)
	}
	return Effect{Doc: doc}
}

func (m *Machine) pointerDown(doc canvas.Document, ev Event) Effect {
	eff := Effect{Doc: doc}
	if m.mode == EditingLabel {
		if ev.Target.Kind == OnNode && ev.Target.NodeID == m.nodeID {
			return eff
		}
		eff = m.commitDraft(doc)
		doc = eff.Doc
	}
	m.toIdle()

	if ev.Target.Kind == OnBackground {
		m.selected = ""
		m.mode = Panning
		m.last = ev.Screen
		return eff
	}

	node, ok := doc.Node(ev.Target.NodeID)
	if !ok {
		return eff
	}
	wasSelected := m.selected == node.ID
	m.selected = node.ID
	m.nodeID = node.ID

	switch {
	case ev.Target.Kind == OnConnectionHandle:
		m.mode = Connecting
	case ev.Target.Kind == OnResizeHandle && wasSelected:
		m.mode = ResizingNode
		size := node.Size
		if size.IsZero() {
			size = node.Kind().DefaultSize()
		}
		m.aspect = size.Width / size.Height
	default:
		m.mode = DraggingNode
		m.grab = m.toCanvas(doc, ev.Screen).Sub(node.Position)
		m.press = ev.Screen
		m.moved = false
	}
	return eff
}

func (m *Machine) pointerMove(doc canvas.Document, ev Event) Effect {
	eff := Effect{Doc: doc}
	switch m.mode {
	case Panning:
		delta := ev.Screen.Sub(m.last)
		m.last = ev.Screen
		if delta == (geometry.Point{}) {
			return eff
		}
		eff.Doc = doc.SetViewport(geometry.Pan(doc.ViewportOrDefault(), delta))
		eff.Changed = true

	case DraggingNode:
		node, ok := doc.Node(m.nodeID)
		if !ok {
			return eff
		}
		if !m.moved {
			if distance(ev.Screen, m.press) <= m.cfg.ClickTolerance {
				return eff
			}
			m.moved = true
		}
		pos := m.toCanvas(doc, ev.Screen).Sub(m.grab)
		if pos == node.Position {
			return eff
		}
		eff.Doc = doc.UpdateNodePosition(node.ID, pos)
		eff.Changed = true

	case ResizingNode:
		node, ok := doc.Node(m.nodeID)
		if !ok {
			return eff
		}
		corner := m.toCanvas(doc, ev.Screen).Sub(node.Position)
		size := geometry.Size{Width: corner.X, Height: corner.Y}
		if node.Kind() == canvas.KindImage {
			size = lockAspect(size, m.aspect, doc.Limits())
		}
		eff.Doc = doc.ResizeNode(node.ID, size)
		if after, _ := eff.Doc.Node(node.ID); after.Size != node.Size {
			eff.Changed = true
		}
	}
	return eff
}

func (m *Machine) pointerUp(doc canvas.Document, ev Event) Effect {
	eff := Effect{Doc: doc}
	switch m.mode {
	case DraggingNode:
		if !m.moved {
			if node, ok := doc.Node(m.nodeID); ok {
				if ref, isRef := node.Payload.(canvas.NoteRefPayload); isRef && ref.NoteID != "" {
					eff.NavigateTo = ref.NoteID
				}
			}
		}
	case Connecting:
		target := ev.Target.NodeID
		if ev.Target.Kind != OnBackground && target != "" && target != m.nodeID {
			// A missing endpoint means the node vanished mid-gesture; drop it.
			if out, _, err := doc.AddEdge(m.nodeID, target); err == nil {
				eff.Doc = out
				eff.Changed = true
			}
		}
	case EditingLabel:
		return eff
	}
	m.toIdle()
	return eff
}

func (m *Machine) doubleClick(doc canvas.Document, ev Event) Effect {
	eff := Effect{Doc: doc}
	if m.mode == EditingLabel {
		return eff
	}
	m.toIdle()

	if ev.Target.Kind == OnBackground {
		out, _, err := doc.AddNode(canvas.NodeSpec{Kind: canvas.KindText}, m.toCanvas(doc, ev.Screen))
		if err != nil {
			return eff
		}
		eff.Doc = out
		eff.Changed = true
		return eff
	}

	node, ok := doc.Node(ev.Target.NodeID)
	if !ok || node.Kind() != canvas.KindText {
		return eff
	}
	m.selected = node.ID
	m.mode = EditingLabel
	m.nodeID = node.ID
	m.draft = node.Label()
	return eff
}

func (m *Machine) key(doc canvas.Document, ev Event) Effect {
	eff := Effect{Doc: doc}
	if m.mode == EditingLabel {
		// The label editor owns the keyboard; only Escape reaches the machine.
		if ev.Key == KeyEscape {
			m.toIdle()
		}
		return eff
	}
	if ev.Key != KeyDelete && ev.Key != KeyBackspace {
		return eff
	}
	if m.selected == "" {
		return eff
	}
	if _, ok := doc.Node(m.selected); ok {
		eff.Doc = doc.RemoveNode(m.selected)
		eff.Changed = true
	}
	if m.nodeID == m.selected {
		m.toIdle()
	}
	m.selected = ""
	return eff
}

func (m *Machine) wheel(doc canvas.Document, ev Event) Effect {
	eff := Effect{Doc: doc, PreventDefault: true}
	prev, had := doc.Viewport()
	if !had {
		prev = geometry.DefaultViewport
	}
	target := prev.Zoom - ev.DeltaY*m.cfg.WheelSensitivity
	next := geometry.ZoomAt(prev, ev.Screen, target, m.cfg.Zoom)
	if next == prev {
		return eff
	}
	eff.Doc = doc.SetViewport(next)
	eff.Changed = true
	return eff
}

func (m *Machine) commitDraft(doc canvas.Document) Effect {
	eff := Effect{Doc: doc}
	if node, ok := doc.Node(m.nodeID); ok && node.Label() != m.draft {
		eff.Doc = doc.UpdateNodeLabel(m.nodeID, m.draft)
		eff.Changed = true
	}
	m.toIdle()
	return eff
}

func (m *Machine) toIdle() {
	m.mode = Idle
	m.nodeID = ""
	m.draft = ""
	m.moved = false
}

func (m *Machine) toCanvas(doc canvas.Document, p geometry.Point) geometry.Point {
	return geometry.ScreenToCanvas(p, doc.ViewportOrDefault())
}

func distance(a, b geometry.Point) float64 {
	d := a.Sub(b)
	return math.Hypot(d.X, d.Y)
}

// lockAspect grows size to the aspect ratio a (width/height), following the
// dimension the pointer pulled furthest, then enforces the limits without
// breaking the ratio.
func lockAspect(size geometry.Size, a float64, limits canvas.Limits) geometry.Size {
	if a <= 0 || math.IsNaN(a) || math.IsInf(a, 0) {
		return size
	}
	w := math.Max(size.Width, size.Height*a)
	h := w / a
	if w < limits.MinWidth {
		w = limits.MinWidth
		h = w / a
	}
	if h < limits.MinHeight {
		h = limits.MinHeight
		w = h * a
	}
	return geometry.Size{Width: w, Height: h}
}
