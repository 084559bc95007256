package api

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/starford/kenaz-canvas/internal/attachments"
	"github.com/starford/kenaz-canvas/internal/storage"
)

// AttachmentHandler serves and accepts the images used by canvas image nodes.
type AttachmentHandler struct {
	store     storage.Provider
	vaultRoot string
	logger    *slog.Logger
}

// NewAttachmentHandler creates a handler rooted at the vault directory.
func NewAttachmentHandler(store storage.Provider, vaultRoot string, logger *slog.Logger) *AttachmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentHandler{store: store, vaultRoot: vaultRoot, logger: logger}
}

// ServeFile handles GET /attachments/{filename}.
func (h *AttachmentHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := attachments.Resolve(h.vaultRoot, chi.URLParam(r, "filename"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, statErr := os.Stat(abs); errors.Is(statErr, fs.ErrNotExist) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/attachments (multipart/form-data, field "file").
// The stored file gets a generated name; the response URL is ready to use as
// an image node's imageUrl.
//
//	@Summary		Upload an image for a canvas image node
//	@Tags			attachments
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Image file"
//	@Success		201		{object}	attachments.Attachment
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/attachments [post]
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, attachments.MaxSize+1<<20)

	if err := r.ParseMultipartForm(attachments.MaxSize); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, attachments.MaxSize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	a, err := attachments.Save(h.store, filepath.Ext(header.Filename), data)
	if err != nil {
		writeError(w, h.logger, "upload attachment", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}
