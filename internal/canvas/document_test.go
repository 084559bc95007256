package canvas

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/starford/kenaz-canvas/internal/apperr"
	"github.com/starford/kenaz-canvas/internal/geometry"
)

func mustAdd(t *testing.T, d Document, spec NodeSpec, pos geometry.Point) (Document, string) {
	t.Helper()
	out, id, err := d.AddNode(spec, pos)
	if err != nil {
		t.Fatalf("AddNode(%+v): %v", spec, err)
	}
	return out, id
}

func TestAddConnectRemoveScenario(t *testing.T) {
	var doc Document

	doc, first := mustAdd(t, doc, NodeSpec{Kind: KindText}, geometry.Point{X: 100, Y: 50})
	n, ok := doc.Node(first)
	if !ok {
		t.Fatal("node missing after add")
	}
	if n.Position != (geometry.Point{X: 100, Y: 50}) {
		t.Errorf("position = %v", n.Position)
	}
	if n.Size != (geometry.Size{Width: 200, Height: 100}) {
		t.Errorf("size = %v, want 200x100", n.Size)
	}
	if n.Label() != PlaceholderLabel {
		t.Errorf("label = %q", n.Label())
	}

	doc, second := mustAdd(t, doc, NodeSpec{Kind: KindText, Label: "b"}, geometry.Point{X: 400, Y: 50})
	doc, edgeID, err := doc.AddEdge(first, second)
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	e, ok := doc.Edge(edgeID)
	if !ok || e.SourceNodeID != first || e.TargetNodeID != second {
		t.Fatalf("edge = %+v", e)
	}
	if e.Style != DefaultEdgeStyle || e.Animated {
		t.Errorf("edge defaults = %+v animated=%v", e.Style, e.Animated)
	}

	doc = doc.RemoveNode(first)
	if _, ok := doc.Node(first); ok {
		t.Error("removed node still present")
	}
	if len(doc.Edges()) != 0 {
		t.Errorf("edges = %d, want 0", len(doc.Edges()))
	}
	if doc.Len() != 1 {
		t.Errorf("nodes = %d, want 1", doc.Len())
	}
}

func TestAddNode_DefaultSizes(t *testing.T) {
	cases := []struct {
		kind Kind
		want geometry.Size
	}{
		{KindText, geometry.Size{Width: 200, Height: 100}},
		{KindNoteRef, geometry.Size{Width: 250, Height: 200}},
		{KindImage, geometry.Size{Width: 250, Height: 200}},
	}
	for _, tc := range cases {
		doc, id := mustAdd(t, Document{}, NodeSpec{Kind: tc.kind}, geometry.Point{})
		n, _ := doc.Node(id)
		if n.Size != tc.want {
			t.Errorf("%s size = %v, want %v", tc.kind, n.Size, tc.want)
		}
		if n.Kind() != tc.kind {
			t.Errorf("kind = %q, want %q", n.Kind(), tc.kind)
		}
	}
}

func TestAddNode_ExplicitSizeIsClamped(t *testing.T) {
	doc, id := mustAdd(t, Document{}, NodeSpec{Kind: KindImage, Size: geometry.Size{Width: 10, Height: 400}}, geometry.Point{})
	n, _ := doc.Node(id)
	if n.Size != (geometry.Size{Width: 50, Height: 400}) {
		t.Errorf("size = %v", n.Size)
	}
}

func TestAddNode_InvalidKind(t *testing.T) {
	doc := Document{}
	out, id, err := doc.AddNode(NodeSpec{Kind: "sticker"}, geometry.Point{})
	if !errors.Is(err, apperr.ErrInvalidKind) {
		t.Fatalf("err = %v, want ErrInvalidKind", err)
	}
	if id != "" || out.Len() != 0 {
		t.Error("document changed on failed add")
	}
}

func TestAddNode_NoteRefLabel(t *testing.T) {
	doc, id := mustAdd(t, Document{}, NodeSpec{Kind: KindNoteRef, NoteID: "plans.md"}, geometry.Point{})
	n, _ := doc.Node(id)
	p, ok := n.Payload.(NoteRefPayload)
	if !ok {
		t.Fatalf("payload = %T", n.Payload)
	}
	if p.NoteID != "plans.md" || p.Label != "Note: plans.md" {
		t.Errorf("payload = %+v", p)
	}
}

func TestOperationsDoNotMutateReceiver(t *testing.T) {
	base, id := mustAdd(t, Document{}, NodeSpec{Kind: KindText, Label: "x"}, geometry.Point{X: 1, Y: 1})
	base = base.SetViewport(geometry.Viewport{X: 1, Y: 2, Zoom: 1})

	_ = base.UpdateNodePosition(id, geometry.Point{X: 9, Y: 9})
	_ = base.ResizeNode(id, geometry.Size{Width: 500, Height: 500})
	_ = base.UpdateNodeLabel(id, "changed")
	_ = base.SetViewport(geometry.Viewport{Zoom: 2})
	_ = base.RemoveNode(id)

	n, ok := base.Node(id)
	if !ok {
		t.Fatal("receiver lost its node")
	}
	if n.Position != (geometry.Point{X: 1, Y: 1}) || n.Label() != "x" || n.Size != KindText.DefaultSize() {
		t.Errorf("receiver mutated: %+v", n)
	}
	if v, _ := base.Viewport(); v.Zoom != 1 {
		t.Errorf("viewport mutated: %+v", v)
	}

	nodes := base.Nodes()
	nodes[0].Position = geometry.Point{X: 42}
	if n, _ := base.Node(id); n.Position.X == 42 {
		t.Error("Nodes() exposes internal storage")
	}
}

func TestMissingIDsAreNoOps(t *testing.T) {
	doc, _ := mustAdd(t, Document{}, NodeSpec{Kind: KindText}, geometry.Point{})
	want, _ := json.Marshal(doc)

	for name, got := range map[string]Document{
		"position": doc.UpdateNodePosition("ghost", geometry.Point{X: 1}),
		"resize":   doc.ResizeNode("ghost", geometry.Size{Width: 300, Height: 300}),
		"label":    doc.UpdateNodeLabel("ghost", "x"),
		"remove":   doc.RemoveNode("ghost"),
		"edge":     doc.RemoveEdge("ghost"),
	} {
		b, _ := json.Marshal(got)
		if string(b) != string(want) {
			t.Errorf("%s changed the document", name)
		}
	}
}

func TestResizeNode_ClampsToMinimum(t *testing.T) {
	doc, id := mustAdd(t, New(Limits{MinWidth: 40, MinHeight: 35}), NodeSpec{Kind: KindText}, geometry.Point{})
	doc = doc.ResizeNode(id, geometry.Size{Width: 1, Height: 1})
	n, _ := doc.Node(id)
	if n.Size != (geometry.Size{Width: 40, Height: 35}) {
		t.Errorf("size = %v, want 40x35", n.Size)
	}
	again := doc.ResizeNode(id, geometry.Size{Width: 1, Height: 1})
	if m, _ := again.Node(id); m.Size != n.Size {
		t.Errorf("clamp not idempotent: %v", m.Size)
	}
}

func TestUpdateNodeLabel_OnlyText(t *testing.T) {
	doc, img := mustAdd(t, Document{}, NodeSpec{Kind: KindImage, ImageURL: "/attachments/a.png"}, geometry.Point{})
	doc, ref := mustAdd(t, doc, NodeSpec{Kind: KindNoteRef, NoteID: "a.md", Label: "Note: A"}, geometry.Point{})
	doc, txt := mustAdd(t, doc, NodeSpec{Kind: KindText, Label: "old"}, geometry.Point{})

	doc = doc.UpdateNodeLabel(img, "nope").UpdateNodeLabel(ref, "nope").UpdateNodeLabel(txt, "new")

	if n, _ := doc.Node(ref); n.Label() != "Note: A" {
		t.Errorf("note-reference label = %q", n.Label())
	}
	if n, _ := doc.Node(img); n.Payload != (ImagePayload{ImageURL: "/attachments/a.png"}) {
		t.Errorf("image payload = %+v", n.Payload)
	}
	if n, _ := doc.Node(txt); n.Label() != "new" {
		t.Errorf("text label = %q", n.Label())
	}
}

func TestAddEdge_Dangling(t *testing.T) {
	doc, a := mustAdd(t, Document{}, NodeSpec{Kind: KindText}, geometry.Point{})
	_, _, err := doc.AddEdge(a, "ghost")
	if !errors.Is(err, apperr.ErrDanglingReference) {
		t.Fatalf("err = %v, want ErrDanglingReference", err)
	}
	_, _, err = doc.AddEdge("ghost", a)
	if !errors.Is(err, apperr.ErrDanglingReference) {
		t.Fatalf("err = %v, want ErrDanglingReference", err)
	}
}

func TestAddEdge_SelfLoopAllowed(t *testing.T) {
	doc, a := mustAdd(t, Document{}, NodeSpec{Kind: KindText}, geometry.Point{})
	doc, id, err := doc.AddEdge(a, a)
	if err != nil {
		t.Fatalf("self loop: %v", err)
	}
	doc = doc.RemoveEdge(id)
	if len(doc.Edges()) != 0 {
		t.Error("RemoveEdge left the edge")
	}
}

func TestCascadeDeleteProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := Document{}
		count := rapid.IntRange(1, 8).Draw(t, "nodes")
		ids := make([]string, 0, count)
		for i := 0; i < count; i++ {
			var id string
			var err error
			doc, id, err = doc.AddNode(NodeSpec{Kind: KindText}, geometry.Point{X: float64(i)})
			if err != nil {
				t.Fatal(err)
			}
			ids = append(ids, id)
		}
		edges := rapid.IntRange(0, 16).Draw(t, "edges")
		for i := 0; i < edges; i++ {
			src := rapid.SampledFrom(ids).Draw(t, "src")
			dst := rapid.SampledFrom(ids).Draw(t, "dst")
			var err error
			doc, _, err = doc.AddEdge(src, dst)
			if err != nil {
				t.Fatal(err)
			}
		}

		victim := rapid.SampledFrom(ids).Draw(t, "victim")
		before := doc.Edges()
		out := doc.RemoveNode(victim)

		if _, ok := out.Node(victim); ok {
			t.Fatalf("node %s survived", victim)
		}
		kept := 0
		for _, e := range before {
			if !e.Touches(victim) {
				kept++
			}
		}
		for _, e := range out.Edges() {
			if e.Touches(victim) {
				t.Fatalf("edge %s still references %s", e.ID, victim)
			}
		}
		if len(out.Edges()) != kept {
			t.Fatalf("edges = %d, want %d", len(out.Edges()), kept)
		}
	})
}

func TestSizeClampProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc, id, _ := Document{}.AddNode(NodeSpec{Kind: KindText}, geometry.Point{})
		s := geometry.Size{
			Width:  rapid.Float64Range(-100, 1000).Draw(t, "w"),
			Height: rapid.Float64Range(-100, 1000).Draw(t, "h"),
		}
		n, _ := doc.ResizeNode(id, s).Node(id)
		if n.Size.Width < DefaultLimits.MinWidth || n.Size.Height < DefaultLimits.MinHeight {
			t.Fatalf("size %v below minimum", n.Size)
		}
		if s.Width >= DefaultLimits.MinWidth && n.Size.Width != s.Width {
			t.Fatalf("width %v altered to %v", s.Width, n.Size.Width)
		}
	})
}

func TestWireRoundTrip(t *testing.T) {
	doc, a := mustAdd(t, Document{}, NodeSpec{Kind: KindText, Label: "hello"}, geometry.Point{X: 1, Y: 2})
	doc, b := mustAdd(t, doc, NodeSpec{Kind: KindNoteRef, NoteID: "x.md", Label: "Note: X"}, geometry.Point{X: 3, Y: 4})
	doc, c := mustAdd(t, doc, NodeSpec{Kind: KindImage, ImageURL: "https://example.com/a.png"}, geometry.Point{X: 5, Y: 6})
	doc, _, _ = doc.AddEdge(a, b)
	doc = doc.SetViewport(geometry.Viewport{X: 10, Y: 20, Zoom: 1.5})

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Decode(data, Limits{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	again, _ := json.Marshal(got)
	if string(again) != string(data) {
		t.Errorf("round trip mismatch:\n%s\n%s", data, again)
	}
	if n, _ := got.Node(c); n.Payload != (ImagePayload{ImageURL: "https://example.com/a.png"}) {
		t.Errorf("image payload = %+v", n.Payload)
	}
	if v, ok := got.Viewport(); !ok || v.Zoom != 1.5 {
		t.Errorf("viewport = %+v ok=%v", v, ok)
	}
}

func TestWireShape(t *testing.T) {
	doc, a := mustAdd(t, Document{}, NodeSpec{Kind: KindText, Label: "t"}, geometry.Point{X: 1, Y: 2})
	doc, _, _ = doc.AddEdge(a, a)
	data, _ := json.Marshal(doc)
	s := string(data)
	for _, want := range []string{
		`"kind":"text"`, `"position":{"x":1,"y":2}`, `"size":{"width":200,"height":100}`,
		`"sourceNodeId"`, `"targetNodeId"`, `"lineStyle":"solid"`, `"color":"#b3b3b3"`, `"animated":false`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %s in %s", want, s)
		}
	}
	if strings.Contains(s, "viewport") {
		t.Errorf("unset viewport serialized: %s", s)
	}
}

func TestDecodeDefaultsAndDangling(t *testing.T) {
	raw := `{
		"nodes": [
			{"id": "a", "position": {"x": 0, "y": 0}, "kind": "text", "label": "A"},
			{"id": "a", "position": {"x": 9, "y": 9}, "kind": "text", "label": "dup"},
			{"id": "b", "position": {"x": 1, "y": 1}, "kind": "note-reference", "noteId": "n.md"}
		],
		"edges": [
			{"id": "e1", "sourceNodeId": "a", "targetNodeId": "b"},
			{"id": "e2", "sourceNodeId": "a", "targetNodeId": "gone", "style": {"lineStyle": "dashed"}}
		]
	}`
	doc, err := Decode([]byte(raw), Limits{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Len() != 2 {
		t.Fatalf("nodes = %d, want 2", doc.Len())
	}
	if n, _ := doc.Node("a"); n.Label() != "A" {
		t.Errorf("duplicate id overwrote first node: %q", n.Label())
	}
	if n, _ := doc.Node("b"); !n.Size.IsZero() {
		t.Errorf("absent size decoded as %v", n.Size)
	}
	e1, _ := doc.Edge("e1")
	if e1.Style != DefaultEdgeStyle {
		t.Errorf("e1 style = %+v", e1.Style)
	}
	e2, _ := doc.Edge("e2")
	if e2.Style.LineStyle != LineDashed || e2.Style.Color != DefaultEdgeColor {
		t.Errorf("e2 style = %+v", e2.Style)
	}

	data, _ := json.Marshal(doc)
	if strings.Contains(string(data), `"e2"`) {
		t.Error("dangling edge persisted")
	}
}

func TestDecodeEmpty(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		doc, err := Decode([]byte(raw), Limits{})
		if err != nil {
			t.Fatalf("Decode(%q): %v", raw, err)
		}
		if doc.Len() != 0 || len(doc.Edges()) != 0 {
			t.Errorf("Decode(%q) not empty", raw)
		}
	}
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode([]byte(`{"nodes":[{"id":"a","kind":"sticker"}]}`), Limits{})
	if !errors.Is(err, apperr.ErrInvalidKind) {
		t.Errorf("unknown kind err = %v", err)
	}
	if _, err := Decode([]byte(`{"nodes":[{"kind":"text"}]}`), Limits{}); err == nil {
		t.Error("node without id should fail")
	}
	if _, err := Decode([]byte(`{"nodes":`), Limits{}); err == nil {
		t.Error("truncated JSON should fail")
	}
}
