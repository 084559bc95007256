// Package parser reads and writes vault note files: Markdown notes with YAML
// frontmatter and canvas boards stored as JSON envelopes.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/kenaz-canvas/internal/canvas"
	"github.com/starford/kenaz-canvas/internal/models"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Result holds the output of parsing a note file.
type Result struct {
	Type        models.NoteType
	Frontmatter map[string]interface{}
	Title       string
	// Body is the Markdown body, or the text node labels of a canvas.
	Body  string
	Links []string
	Tags  []string
	// Canvas and UpdatedAt are set for canvas notes.
	Canvas    *canvas.Document
	UpdatedAt time.Time
}

// Parse dispatches on the file extension of p.
func Parse(p string, data []byte, limits canvas.Limits) (*Result, error) {
	typ, ok := models.TypeFromPath(p)
	if !ok {
		return nil, fmt.Errorf("parser: %s: not a note file", p)
	}
	if typ == models.TypeCanvas {
		return ParseCanvas(p, data, limits)
	}
	return ParseMarkdown(p, data), nil
}

// ParseMarkdown extracts frontmatter, body, wikilinks, and tags. It never
// fails: malformed frontmatter is treated as body text.
func ParseMarkdown(p string, data []byte) *Result {
	fm, body := splitFrontmatter(data)
	title := deriveTitle(fm, body)
	if title == "" {
		title = TitleFromPath(p)
	}
	return &Result{
		Type:        models.TypeMarkdown,
		Frontmatter: fm,
		Title:       title,
		Body:        body,
		Links:       extractLinks(body),
		Tags:        extractTags(body, fm),
	}
}

// canvasFile is the on-disk envelope of a canvas note.
type canvasFile struct {
	Title     string          `json:"title"`
	UpdatedAt time.Time       `json:"updated_at"`
	Canvas    json.RawMessage `json:"canvas"`
}

// ParseCanvas decodes a canvas envelope. Empty data is a fresh canvas. Links
// are the notes referenced by note-reference nodes.
func ParseCanvas(p string, data []byte, limits canvas.Limits) (*Result, error) {
	var f canvasFile
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parser: %s: %w", p, err)
		}
	}
	doc, err := canvas.Decode(f.Canvas, limits)
	if err != nil {
		return nil, fmt.Errorf("parser: %s: %w", p, err)
	}

	title := strings.TrimSpace(f.Title)
	if title == "" {
		title = TitleFromPath(p)
	}

	var (
		labels []string
		links  []string
		seen   = make(map[string]struct{})
	)
	for _, n := range doc.Nodes() {
		switch pl := n.Payload.(type) {
		case canvas.TextPayload:
			if pl.Label != "" && pl.Label != canvas.PlaceholderLabel {
				labels = append(labels, pl.Label)
			}
		case canvas.NoteRefPayload:
			if pl.NoteID == "" {
				continue
			}
			if _, dup := seen[pl.NoteID]; dup {
				continue
			}
			seen[pl.NoteID] = struct{}{}
			links = append(links, pl.NoteID)
		}
	}

	return &Result{
		Type:      models.TypeCanvas,
		Title:     title,
		Body:      strings.Join(labels, "\n"),
		Links:     links,
		Canvas:    &doc,
		UpdatedAt: f.UpdatedAt,
	}, nil
}

// EncodeCanvas renders the on-disk envelope for a canvas note.
func EncodeCanvas(title string, doc canvas.Document, updatedAt time.Time) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parser: encode canvas: %w", err)
	}
	out, err := json.MarshalIndent(canvasFile{
		Title:     title,
		UpdatedAt: updatedAt.UTC(),
		Canvas:    raw,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("parser: encode canvas: %w", err)
	}
	return append(out, '\n'), nil
}

// EncodeMarkdown renders a new Markdown note with a title frontmatter block.
func EncodeMarkdown(title, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	fm, err := yaml.Marshal(map[string]string{"title": title})
	if err != nil {
		return nil, fmt.Errorf("parser: encode frontmatter: %w", err)
	}
	buf.Write(fm)
	buf.WriteString("---\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// TitleFromPath returns the file name without directory or extension.
func TitleFromPath(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. Without valid frontmatter the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// extractLinks returns deduplicated wikilink targets as note ids. Aliases and
// heading anchors are dropped; a target without a note extension is a
// Markdown note.
func extractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target := m[1]
		if i := strings.IndexAny(target, "|#"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if !models.IsNoteFile(target) {
			target += models.ExtMarkdown
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractTags collects #tags from body and from the frontmatter "tags" field.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	if raw, ok := fm["tags"].([]interface{}); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				add(strings.TrimSpace(s))
			}
		}
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
