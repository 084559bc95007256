package mcpserver

// CanvasFormatContract describes canvas notes and the rules the canvas tools
// enforce, for LLM consumers.
const CanvasFormatContract = `# Kenaz Canvas Format Contract

A canvas is a note stored as a ` + "`" + `.canvas` + "`" + ` file. It holds positioned nodes,
directed edges between them and an optional saved viewport.

## File structure

` + "```" + `json
{
  "title": "Roadmap",
  "updated_at": "2026-01-15T10:00:00Z",
  "canvas": {
    "nodes": [
      { "id": "…", "position": { "x": 0, "y": 0 }, "kind": "text", "label": "Idea" },
      { "id": "…", "position": { "x": 300, "y": 0 }, "size": { "width": 200, "height": 120 },
        "kind": "note-reference", "label": "Note: Plan", "noteId": "plan.md" },
      { "id": "…", "position": { "x": 0, "y": 200 }, "kind": "image",
        "imageUrl": "/attachments/3f2c….png" }
    ],
    "edges": [
      { "id": "…", "sourceNodeId": "…", "targetNodeId": "…",
        "style": { "lineStyle": "solid", "color": "#b3b3b3" }, "animated": false }
    ],
    "viewport": { "x": 0, "y": 0, "zoom": 1 }
  }
}
` + "```" + `

## Node kinds

- **text**: free label. A new text node without a label shows the placeholder.
- **note-reference**: points at a Markdown note by path (` + "`" + `noteId` + "`" + `). The label is
  ` + "`" + `Note: <title>` + "`" + `. Canvases cannot reference themselves or other canvases.
  Clicking the node in the app opens the referenced note.
- **image**: shows ` + "`" + `imageUrl` + "`" + `. Use ` + "`" + `add_image_from_url` + "`" + ` to store a remote image
  under ` + "`" + `/attachments/` + "`" + ` and place it in one step.

## Rules

1. **Open first.** Canvas tools act on the active note; call ` + "`" + `open_note` + "`" + ` with a
   ` + "`" + `.canvas` + "`" + ` path before editing.
2. **Ids are opaque.** Node and edge ids are generated; read them from tool results.
3. **Edges need both endpoints.** Connecting to a missing node fails. Removing a node
   removes every edge touching it.
4. **Coordinates** are canvas units, independent of zoom. Omit x and y to place a node at
   the centre of the visible area.
5. **Sizes** are clamped to a minimum; images keep their aspect ratio when resized.
6. **Saving** happens automatically shortly after each change. Call ` + "`" + `save_canvas` + "`" + `
   when the change must be on disk before you continue.
`
