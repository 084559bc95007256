package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/kenaz-canvas/internal/controller"
	"github.com/starford/kenaz-canvas/internal/noteservice"
	"github.com/starford/kenaz-canvas/internal/storage"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// AuthEnabled controls whether Bearer token auth is enforced.
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events    http.Handler
	Store     storage.Provider
	VaultRoot string
	Logger    *slog.Logger
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *noteservice.Service, ctl *controller.Controller, cfg RouterConfig) chi.Router {
	h := NewHandler(svc, ctl, cfg.Logger)
	ah := NewAttachmentHandler(cfg.Store, cfg.VaultRoot, cfg.Logger)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/*", h.GetNote)
	r.Delete("/notes/*", h.DeleteNote)

	r.Get("/active", h.GetActive)
	r.Put("/active", h.SetActive)

	r.Route("/canvas", func(r chi.Router) {
		r.Get("/", h.GetCanvas)
		r.Post("/events", h.HandleEvents)
		r.Post("/nodes", h.AddNode)
		r.Delete("/nodes/{id}", h.RemoveNode)
		r.Post("/edges", h.Connect)
		r.Delete("/edges/{id}", h.RemoveEdge)
		r.Post("/save", h.Save)
		r.Get("/references", h.References)
	})

	r.Post("/attachments", ah.Upload)

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}

// NewRootRouter wraps the API router with request middleware, the
// unauthenticated health checks and attachment serving, and mounts it at /api.
func NewRootRouter(apiRouter http.Handler, ah *AttachmentHandler, ready func() error, mw ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(mw...)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/attachments/{filename}", ah.ServeFile)
	r.Mount("/api", apiRouter)
	return r
}
