package parser

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/kenaz-canvas/internal/apperr"
	"github.com/starford/kenaz-canvas/internal/canvas"
	"github.com/starford/kenaz-canvas/internal/geometry"
	"github.com/starford/kenaz-canvas/internal/models"
)

func TestParseMarkdown_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntags:\n  - go\n  - kenaz\n---\n# Heading\nBody text.\n")
	r := ParseMarkdown("notes/hello.md", input)
	if r.Type != models.TypeMarkdown {
		t.Errorf("type = %q", r.Type)
	}
	if r.Title != "Hello" {
		t.Errorf("title = %q, want %q", r.Title, "Hello")
	}
	if len(r.Tags) < 2 || r.Tags[0] != "go" || r.Tags[1] != "kenaz" {
		t.Errorf("tags = %v, want [go kenaz]", r.Tags)
	}
	if r.Body != "# Heading\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParseMarkdown_TitleFallbacks(t *testing.T) {
	r := ParseMarkdown("a.md", []byte("# Just a heading\nSome text.\n"))
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want H1", r.Title)
	}

	r = ParseMarkdown("dir/Plain Note.md", []byte("no heading here"))
	if r.Title != "Plain Note" {
		t.Errorf("title = %q, want file stem", r.Title)
	}
}

func TestParseMarkdown_InvalidYAMLFallback(t *testing.T) {
	r := ParseMarkdown("x.md", []byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
	if !strings.Contains(r.Body, "Body") {
		t.Errorf("body = %q", r.Body)
	}
}

func TestExtractLinks(t *testing.T) {
	body := "See [[Note A]] and [[Note B|alias]] and [[Board.canvas]].\nAlso [[Note A#Intro]] again."
	links := extractLinks(body)
	want := []string{"Note A.md", "Note B.md", "Board.canvas"}
	if len(links) != len(want) {
		t.Fatalf("links = %v, want %v", links, want)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %q, want %q", i, links[i], want[i])
		}
	}
}

func TestExtractLinks_EmptyTarget(t *testing.T) {
	if links := extractLinks("see [[ ]] and [[|alias]]"); len(links) != 0 {
		t.Errorf("expected no links, got %v", links)
	}
}

func TestExtractTags_InlineAndFrontmatter(t *testing.T) {
	fm := map[string]any{"tags": []any{"alpha"}}
	tags := extractTags("Some text #beta and #alpha again.", fm)
	if len(tags) != 2 || tags[0] != "alpha" || tags[1] != "beta" {
		t.Errorf("tags = %v, want [alpha beta]", tags)
	}
}

func TestCanvasRoundTrip(t *testing.T) {
	var doc canvas.Document
	doc, a, err := doc.AddNode(canvas.NodeSpec{Kind: canvas.KindText, Label: "idea"}, geometry.Point{X: 1, Y: 2})
	if err != nil {
		t.Fatal(err)
	}
	doc, b, err := doc.AddNode(canvas.NodeSpec{Kind: canvas.KindNoteRef, NoteID: "ref.md", Label: "Note: Ref"}, geometry.Point{X: 300})
	if err != nil {
		t.Fatal(err)
	}
	doc, _, err = doc.AddNode(canvas.NodeSpec{Kind: canvas.KindNoteRef, NoteID: "ref.md"}, geometry.Point{X: 600})
	if err != nil {
		t.Fatal(err)
	}
	doc, _, err = doc.AddEdge(a, b)
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	data, err := EncodeCanvas("My Board", doc, at)
	if err != nil {
		t.Fatalf("EncodeCanvas: %v", err)
	}
	r, err := Parse("boards/b.canvas", data, canvas.DefaultLimits)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Type != models.TypeCanvas || r.Title != "My Board" {
		t.Errorf("type=%q title=%q", r.Type, r.Title)
	}
	if !r.UpdatedAt.Equal(at) {
		t.Errorf("updated_at = %v", r.UpdatedAt)
	}
	if r.Canvas == nil || r.Canvas.Len() != 3 || len(r.Canvas.Edges()) != 1 {
		t.Fatalf("canvas = %+v", r.Canvas)
	}
	if len(r.Links) != 1 || r.Links[0] != "ref.md" {
		t.Errorf("links = %v", r.Links)
	}
	if r.Body != "idea" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParseCanvas_EmptyFileIsFreshCanvas(t *testing.T) {
	r, err := Parse("new.canvas", nil, canvas.DefaultLimits)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Canvas == nil || r.Canvas.Len() != 0 {
		t.Errorf("canvas = %+v", r.Canvas)
	}
	if r.Title != "new" {
		t.Errorf("title = %q", r.Title)
	}
}

func TestParseCanvas_Errors(t *testing.T) {
	if _, err := Parse("bad.canvas", []byte("{not json"), canvas.DefaultLimits); err == nil {
		t.Error("expected error for malformed envelope")
	}
	data := []byte(`{"title":"x","canvas":{"nodes":[{"id":"n1","position":{"x":0,"y":0},"kind":"video"}]}}`)
	_, err := Parse("bad.canvas", data, canvas.DefaultLimits)
	if !errors.Is(err, apperr.ErrInvalidKind) {
		t.Errorf("err = %v, want ErrInvalidKind", err)
	}
	if _, err := Parse("readme.txt", []byte("x"), canvas.DefaultLimits); err == nil {
		t.Error("expected error for non-note file")
	}
}

func TestEncodeMarkdown(t *testing.T) {
	data, err := EncodeMarkdown("Fresh", "Hello [[Other]]\n")
	if err != nil {
		t.Fatal(err)
	}
	r := ParseMarkdown("fresh.md", data)
	if r.Title != "Fresh" {
		t.Errorf("title = %q", r.Title)
	}
	if len(r.Links) != 1 || r.Links[0] != "Other.md" {
		t.Errorf("links = %v", r.Links)
	}
}
