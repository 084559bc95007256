package mcpserver

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/kenaz-canvas/internal/apperr"
	"github.com/starford/kenaz-canvas/internal/attachments"
	"github.com/starford/kenaz-canvas/internal/canvas"
	"github.com/starford/kenaz-canvas/internal/controller"
	"github.com/starford/kenaz-canvas/internal/geometry"
)

func (s *Server) registerCanvasTools() {
	s.mcp.AddTool(mcp.NewTool("open_note",
		mcp.WithDescription("Make a note active. Canvas tools operate on the active canvas."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note path, e.g. boards/roadmap.canvas")),
	), s.openNote)

	s.mcp.AddTool(mcp.NewTool("get_canvas",
		mcp.WithDescription("Return the active canvas: nodes, edges and viewport."),
	), s.getCanvas)

	s.mcp.AddTool(mcp.NewTool("add_canvas_node",
		mcp.WithDescription("Add a node to the active canvas. Without x and y the node goes to the "+
			"centre of the visible area."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("text, note-reference or image")),
		mcp.WithString("label", mcp.Description("Text node label")),
		mcp.WithString("note_id", mcp.Description("Referenced Markdown note (note-reference)")),
		mcp.WithString("image_url", mcp.Description("Image URL (image)")),
		mcp.WithNumber("x", mcp.Description("Canvas x position")),
		mcp.WithNumber("y", mcp.Description("Canvas y position")),
	), s.addCanvasNode)

	s.mcp.AddTool(mcp.NewTool("connect_canvas_nodes",
		mcp.WithDescription("Add an edge between two nodes of the active canvas."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source node id")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target node id")),
	), s.connectCanvasNodes)

	s.mcp.AddTool(mcp.NewTool("remove_canvas_node",
		mcp.WithDescription("DESTRUCTIVE: remove a node and every edge touching it."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node id")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.removeCanvasNode)

	s.mcp.AddTool(mcp.NewTool("remove_canvas_edge",
		mcp.WithDescription("DESTRUCTIVE: remove one edge from the active canvas."),
		mcp.WithString("edge_id", mcp.Required(), mcp.Description("Edge id")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.removeCanvasEdge)

	s.mcp.AddTool(mcp.NewTool("save_canvas",
		mcp.WithDescription("Write the active canvas to disk now instead of waiting for the autosave."),
	), s.saveCanvas)

	s.mcp.AddTool(mcp.NewTool("add_image_from_url",
		mcp.WithDescription("Download an image (http/https or base64 data URI), store it under "+
			"attachments/ and add an image node showing it to the active canvas."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Image URL or data URI")),
		mcp.WithNumber("x", mcp.Description("Canvas x position")),
		mcp.WithNumber("y", mcp.Description("Canvas y position")),
	), s.addImageFromURL)
}

// toolError turns a domain error into a tool error message.
func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotCanvas) {
		return mcp.NewToolResultError("the active note is not a canvas; call open_note with a .canvas path first")
	}
	return mcp.NewToolResultError(err.Error())
}

// placement reads optional x and y arguments.
func placement(req mcp.CallToolRequest) controller.Placement {
	args := req.GetArguments()
	_, hasX := args["x"]
	_, hasY := args["y"]
	if !hasX && !hasY {
		return controller.Centered(geometry.Size{})
	}
	return controller.At(geometry.Point{X: req.GetFloat("x", 0), Y: req.GetFloat("y", 0)})
}

func boolPtr(v bool) *bool { return &v }

type created struct {
	ID    string           `json:"id"`
	State controller.State `json:"state"`
}

func (s *Server) openNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.ctl.Open(ctx, path)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(st)
}

func (s *Server) getCanvas(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.ctl.State()
	if st.Canvas == nil {
		return toolError(apperr.ErrNotCanvas), nil
	}
	return jsonResult(st)
}

func (s *Server) addCanvasNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var (
		st controller.State
		id string
	)
	p := placement(req)
	switch canvas.Kind(kind) {
	case canvas.KindText:
		st, id, err = s.ctl.AddTextNode(req.GetString("label", ""), p)
	case canvas.KindNoteRef:
		st, id, err = s.ctl.AddNoteReferenceNode(ctx, req.GetString("note_id", ""), p)
	case canvas.KindImage:
		st, id, err = s.ctl.AddImageNode(req.GetString("image_url", ""), p)
	default:
		return mcp.NewToolResultError("kind must be text, note-reference or image"), nil
	}
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(created{ID: id, State: st})
}

func (s *Server) connectCanvasNodes(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, id, err := s.ctl.Connect(source, target)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(created{ID: id, State: st})
}

func (s *Server) removeCanvasNode(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.ctl.RemoveNode(id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(st)
}

func (s *Server) removeCanvasEdge(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("edge_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.ctl.RemoveEdge(id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(st)
}

func (s *Server) saveCanvas(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ctl.SaveNow(ctx); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("saved: " + s.ctl.ActiveNoteID()), nil
}

func (s *Server) addImageFromURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.ctl.State().Canvas == nil {
		return toolError(apperr.ErrNotCanvas), nil
	}

	data, ext, err := attachments.Fetch(ctx, rawURL)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := attachments.Save(s.store, ext, data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	st, id, err := s.ctl.AddImageNode(a.URL, placement(req))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(created{ID: id, State: st})
}
