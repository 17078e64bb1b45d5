package chunkedupload

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	playvalidator "github.com/go-playground/validator/v10"

	"github.com/gallerybot/gallery-api/internal/middleware"
	"github.com/gallerybot/gallery-api/internal/pkg/response"
	"github.com/gallerybot/gallery-api/internal/pkg/validator"
)

// Handler handles chunked-upload HTTP requests.
type Handler struct {
	manager   *Manager
	validator *playvalidator.Validate
}

// NewHandler creates a chunked-upload handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager, validator: validator.New()}
}

// Init handles POST /uploads, starting a new session.
func (h *Handler) Init(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())

	var req InitRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	uploadID, err := h.manager.Init(req.FileName, req.FileType, req.TotalSize, req.GalleryName, guildID)
	if err != nil {
		response.AppError(w, err)
		return
	}

	response.Created(w, InitResponse{UploadID: uploadID})
}

// Chunk handles PUT /uploads/{uploadId}/chunks/{index}, accepting one raw
// chunk body capped at MaxChunkSize.
func (h *Handler) Chunk(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadId")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		response.BadRequest(w, "invalid chunk index")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, MaxChunkSize+1))
	if err != nil {
		response.BadRequest(w, "failed to read chunk body")
		return
	}
	if len(data) > MaxChunkSize {
		response.Error(w, http.StatusRequestEntityTooLarge, "RESOURCE_LIMIT", "chunk exceeds maximum size of 10MiB")
		return
	}

	if err := h.manager.SaveChunk(uploadID, index, data); err != nil {
		response.AppError(w, err)
		return
	}
	response.NoContent(w)
}

// Finalize handles POST /uploads/{uploadId}/finalize, assembling the
// session's chunks into one local file and returning its progress state.
// The assembled file path is not exposed to the client; the ingest
// pipeline (component E) consumes it server-side.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadId")

	if _, err := h.manager.Finalize(uploadID); err != nil {
		response.AppError(w, err)
		return
	}

	session, err := h.manager.Get(uploadID)
	if err != nil {
		response.AppError(w, err)
		return
	}
	response.OK(w, ProgressResponse{UploadID: uploadID, Progress: session.Progress})
}

// Progress handles GET /uploads/{uploadId}, returning the session's
// current progress for polling clients.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadId")

	session, err := h.manager.Get(uploadID)
	if err != nil {
		response.AppError(w, err)
		return
	}
	response.OK(w, ProgressResponse{UploadID: uploadID, Progress: session.Progress})
}
