// Package mcpserver exposes the note store and the canvas controller as MCP
// tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/kenaz-canvas/internal/controller"
	"github.com/starford/kenaz-canvas/internal/index"
	"github.com/starford/kenaz-canvas/internal/models"
	"github.com/starford/kenaz-canvas/internal/noteservice"
	"github.com/starford/kenaz-canvas/internal/storage"
)

// CanvasFormatURI is the resource holding CanvasFormatContract.
const CanvasFormatURI = "kenaz://canvas-format"

// Server wraps the MCP server with note and canvas tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *noteservice.Service
	ctl   *controller.Controller
	store storage.Provider
}

// New creates an MCP server with all tools registered.
func New(svc *noteservice.Service, ctl *controller.Controller, store storage.Provider) *Server {
	s := &Server{svc: svc, ctl: ctl, store: store}

	s.mcp = server.NewMCPServer(
		"Kenaz Canvas",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, newest first. Canvas notes end in .canvas."),
		mcp.WithString("type", mcp.Description("Optional note type filter: markdown or canvas")),
		mcp.WithString("tag", mcp.Description("Optional tag filter")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note. Markdown notes return their text, canvases their nodes and edges."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note path, e.g. folder/note.md")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a Markdown or canvas note. For canvases give a title and type=canvas; "+
			"the file name is derived from the title."),
		mcp.WithString("title", mcp.Description("Note title")),
		mcp.WithString("path", mcp.Description("Optional vault path (must end with .md or .canvas)")),
		mcp.WithString("type", mcp.Description("markdown (default) or canvas")),
		mcp.WithString("content", mcp.Description("Markdown content, ignored for canvases")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes, canvases included, that link to the specified note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_canvas_contract",
		mcp.WithDescription("Returns the canvas document format and the rules canvas tools follow. "+
			"Call this before editing a canvas."),
	), s.getCanvasContract)

	s.registerCanvasTools()

	s.mcp.AddResource(
		mcp.NewResource(CanvasFormatURI, "Canvas Format Contract",
			mcp.WithResourceDescription("Canvas document format and editing rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCanvasFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.svc.ListNotes(ctx, index.ListQuery{
		Limit: 200,
		Type:  models.NoteType(req.GetString("type", "")),
		Tag:   req.GetString("tag", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"notes": items, "total": total})
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.GetNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if n.Type == models.TypeCanvas {
		return jsonResult(n.Canvas)
	}
	return mcp.NewToolResultText(n.Content), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.svc.CreateNote(ctx, noteservice.CreateNoteInput{
		Path:    req.GetString("path", ""),
		Type:    models.NoteType(req.GetString("type", "")),
		Title:   req.GetString("title", ""),
		Content: req.GetString("content", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.ID)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) getCanvasContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CanvasFormatContract), nil
}

func (s *Server) readCanvasFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      CanvasFormatURI,
			MIMEType: "text/markdown",
			Text:     CanvasFormatContract,
		},
	}, nil
}
