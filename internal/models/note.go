// Package models defines the domain types shared by the note store and its
// transports.
package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/kenaz-canvas/internal/canvas"
)

// NoteType distinguishes Markdown documents from canvas boards.
type NoteType string

// Note types. The file extension decides the type.
const (
	TypeMarkdown NoteType = "markdown"
	TypeCanvas   NoteType = "canvas"
)

// File extensions for each note type.
const (
	ExtMarkdown = ".md"
	ExtCanvas   = ".canvas"
)

// Ext returns the file extension for t.
func (t NoteType) Ext() string {
	if t == TypeCanvas {
		return ExtCanvas
	}
	return ExtMarkdown
}

// TypeFromPath derives the note type from a vault path. ok is false for files
// that are not notes.
func TypeFromPath(path string) (NoteType, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtMarkdown:
		return TypeMarkdown, true
	case ExtCanvas:
		return TypeCanvas, true
	}
	return "", false
}

// IsNoteFile reports whether path names a Markdown or canvas note.
func IsNoteFile(path string) bool {
	_, ok := TypeFromPath(path)
	return ok
}

// Note is a parsed vault file. ID is the vault-relative path.
type Note struct {
	ID          string                 `json:"id"`
	Type        NoteType               `json:"type"`
	Title       string                 `json:"title"`
	Content     string                 `json:"content,omitempty"`
	Frontmatter map[string]interface{} `json:"frontmatter,omitempty"`
	Links       []string               `json:"links,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	// Canvas is set for canvas notes only.
	Canvas    *canvas.Document `json:"canvas,omitempty"`
	Backlinks []string         `json:"backlinks,omitempty"`
	Checksum  string           `json:"checksum"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NoteMetadata is what a storage listing knows about a file.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteListItem is one row of a note listing.
type NoteListItem struct {
	ID        string    `json:"id"`
	Type      NoteType  `json:"type"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link is a directed reference between two notes.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"` // "wikilink" or "canvas"
}
