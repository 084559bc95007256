package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/kenaz-canvas/internal/apperr"
	"github.com/starford/kenaz-canvas/internal/canvas"
	"github.com/starford/kenaz-canvas/internal/controller"
)

// GetCanvas handles GET /api/canvas.
//
//	@Summary		Get the active canvas
//	@Tags			canvas
//	@Produce		json
//	@Success		200	{object}	controller.State
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas [get]
func (h *Handler) GetCanvas(w http.ResponseWriter, _ *http.Request) {
	st := h.ctl.State()
	if st.Canvas == nil {
		writeError(w, h.logger, "get canvas", apperr.ErrNotCanvas)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleEvents handles POST /api/canvas/events. Events are applied in order;
// processing stops after an event that navigates to another note.
//
//	@Summary		Deliver input events to the active canvas
//	@Tags			canvas
//	@Accept			json
//	@Produce		json
//	@Param			body	body		EventsRequest	true	"Input events"
//	@Success		200		{object}	EventsResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas/events [post]
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	var req EventsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var resp EventsResponse
	for _, ev := range req.Events {
		res, err := h.ctl.HandleEvent(r.Context(), ev)
		if err != nil {
			writeError(w, h.logger, "canvas event", err)
			return
		}
		changed := resp.Changed || res.Changed
		resp.Result = res
		resp.Changed = changed
		resp.Applied++
		if res.NavigatedTo != "" {
			break
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// AddNode handles POST /api/canvas/nodes.
//
//	@Summary		Add a text, note-reference or image node
//	@Tags			canvas
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddNodeRequest	true	"Node to add"
//	@Success		201		{object}	CreatedResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas/nodes [post]
func (h *Handler) AddNode(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		st  controller.State
		id  string
		err error
	)
	switch req.Kind {
	case canvas.KindText:
		st, id, err = h.ctl.AddTextNode(req.Label, req.placement())
	case canvas.KindNoteRef:
		st, id, err = h.ctl.AddNoteReferenceNode(r.Context(), req.NoteID, req.placement())
	case canvas.KindImage:
		st, id, err = h.ctl.AddImageNode(req.ImageURL, req.placement())
	}
	if err != nil {
		writeError(w, h.logger, "add node", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id, State: st})
}

// RemoveNode handles DELETE /api/canvas/nodes/{id}.
//
//	@Summary		Remove a node and its edges
//	@Tags			canvas
//	@Produce		json
//	@Param			id	path		string	true	"Node id"
//	@Success		200	{object}	controller.State
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas/nodes/{id} [delete]
func (h *Handler) RemoveNode(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctl.RemoveNode(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "remove node", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// RemoveEdge handles DELETE /api/canvas/edges/{id}.
//
//	@Summary		Remove an edge
//	@Tags			canvas
//	@Produce		json
//	@Param			id	path		string	true	"Edge id"
//	@Success		200	{object}	controller.State
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas/edges/{id} [delete]
func (h *Handler) RemoveEdge(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctl.RemoveEdge(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, "remove edge", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Connect handles POST /api/canvas/edges.
//
//	@Summary		Connect two nodes
//	@Tags			canvas
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ConnectRequest	true	"Edge endpoints"
//	@Success		201		{object}	CreatedResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas/edges [post]
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	st, id, err := h.ctl.Connect(req.Source, req.Target)
	if err != nil {
		writeError(w, h.logger, "connect", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id, State: st})
}

// Save handles POST /api/canvas/save.
//
//	@Summary		Write the active canvas now
//	@Tags			canvas
//	@Produce		json
//	@Success		200	{object}	controller.State
//	@Failure		422	{object}	errResponse
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/canvas/save [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	if err := h.ctl.SaveNow(r.Context()); err != nil {
		writeError(w, h.logger, "save canvas", err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctl.State())
}

// References handles GET /api/canvas/references.
//
//	@Summary		List notes the active canvas may reference
//	@Tags			canvas
//	@Produce		json
//	@Success		200	{object}	ReferencesResponse
//	@Security		BearerAuth
//	@Router			/canvas/references [get]
func (h *Handler) References(w http.ResponseWriter, r *http.Request) {
	items, err := h.ctl.ReferenceCandidates(r.Context())
	if err != nil {
		writeError(w, h.logger, "reference candidates", err)
		return
	}
	writeJSON(w, http.StatusOK, ReferencesResponse{Notes: items})
}
