package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/kenaz-canvas/internal/canvas"
	"github.com/starford/kenaz-canvas/internal/controller"
	"github.com/starford/kenaz-canvas/internal/geometry"
	"github.com/starford/kenaz-canvas/internal/interaction"
	"github.com/starford/kenaz-canvas/internal/models"
)

// CreateNoteRequest is the request body for creating a note. Path may be
// omitted when Title is set.
type CreateNoteRequest struct {
	Path    string          `json:"path" example:"boards/roadmap.canvas"`
	Type    models.NoteType `json:"type" example:"canvas" enums:"markdown,canvas"`
	Title   string          `json:"title" example:"Roadmap"`
	Content string          `json:"content" example:"# Hello"`
}

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []models.NoteListItem `json:"notes" validate:"required"`
	Total int                   `json:"total" example:"42" validate:"required"`
}

// ActivateRequest selects the active note. An empty NoteID deactivates.
type ActivateRequest struct {
	NoteID string `json:"note_id" example:"boards/roadmap.canvas"`
}

// EventsRequest carries input events in delivery order.
type EventsRequest struct {
	Events []interaction.Event `json:"events" validate:"required"`
}

var eventTypes = []any{
	interaction.PointerDown, interaction.PointerMove, interaction.PointerUp,
	interaction.PointerLeave, interaction.Wheel, interaction.DoubleClick,
	interaction.KeyDown, interaction.TextInput, interaction.Commit, interaction.Blur,
}

var targetKinds = []any{
	interaction.OnBackground, interaction.OnNode,
	interaction.OnResizeHandle, interaction.OnConnectionHandle,
}

// Validate checks every event's type and target.
func (r EventsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Events, validation.Required, validation.Each(validation.By(validateEvent))),
	)
}

func validateEvent(v any) error {
	ev, _ := v.(interaction.Event)
	return validation.ValidateStruct(&ev,
		validation.Field(&ev.Type, validation.Required, validation.In(eventTypes...)),
		validation.Field(&ev.Target, validation.By(func(any) error {
			return validation.ValidateStruct(&ev.Target,
				validation.Field(&ev.Target.Kind, validation.In(targetKinds...)),
				validation.Field(&ev.Target.NodeID, validation.When(
					ev.Target.Kind != "" && ev.Target.Kind != interaction.OnBackground, validation.Required)),
			)
		})),
	)
}

// EventsResponse is the outcome of the last applied event.
type EventsResponse struct {
	controller.Result
	Applied int `json:"applied" example:"3"`
}

// AddNodeRequest creates a node. Position places it explicitly; otherwise it
// goes to the centre of Screen (or the configured screen size).
type AddNodeRequest struct {
	Kind     canvas.Kind     `json:"kind" example:"text" enums:"text,note-reference,image"`
	Label    string          `json:"label,omitempty"`
	NoteID   string          `json:"noteId,omitempty"`
	ImageURL string          `json:"imageUrl,omitempty"`
	Position *geometry.Point `json:"position,omitempty"`
	Screen   *geometry.Size  `json:"screen,omitempty"`
}

// Validate checks the kind and the field that kind needs.
func (r AddNodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Kind, validation.Required,
			validation.In(canvas.KindText, canvas.KindNoteRef, canvas.KindImage)),
		validation.Field(&r.NoteID, validation.When(r.Kind == canvas.KindNoteRef, validation.Required)),
		validation.Field(&r.ImageURL, validation.When(r.Kind == canvas.KindImage, validation.Required)),
	)
}

func (r AddNodeRequest) placement() controller.Placement {
	if r.Position != nil {
		return controller.At(*r.Position)
	}
	if r.Screen != nil {
		return controller.Centered(*r.Screen)
	}
	return controller.Centered(geometry.Size{})
}

// ConnectRequest creates an edge.
type ConnectRequest struct {
	Source string `json:"sourceNodeId" validate:"required"`
	Target string `json:"targetNodeId" validate:"required"`
}

// Validate requires both endpoints.
func (r ConnectRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Source, validation.Required),
		validation.Field(&r.Target, validation.Required),
	)
}

// CreatedResponse reports the id of a created node or edge with the new state.
type CreatedResponse struct {
	ID    string           `json:"id"`
	State controller.State `json:"state"`
}

// ReferencesResponse lists the notes a canvas may reference.
type ReferencesResponse struct {
	Notes []models.NoteListItem `json:"notes" validate:"required"`
}
