package ingest

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gallerybot/gallery-api/internal/domain/chunkedupload"
	"github.com/gallerybot/gallery-api/internal/domain/gallery"
	"github.com/gallerybot/gallery-api/internal/middleware"
	"github.com/gallerybot/gallery-api/internal/pkg/objectkey"
	"github.com/gallerybot/gallery-api/internal/pkg/response"
)

// Handler bridges a finished chunked-upload session into the
// uploadToGallery decision tree, and exposes async-job polling.
type Handler struct {
	service   *Service
	uploads   *chunkedupload.Manager
	galleries *gallery.Service
}

// NewHandler builds a Handler.
func NewHandler(service *Service, uploads *chunkedupload.Manager, galleries *gallery.Service) *Handler {
	return &Handler{service: service, uploads: uploads, galleries: galleries}
}

// Ingest handles POST /uploads/{uploadId}/ingest: it finalizes the chunked
// session (assembling the file locally), resolves the destination object
// key prefix from the session's gallery, and runs the uploadToGallery
// decision tree against the assembled bytes.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadId")
	guildID := middleware.GetGuildID(r.Context())

	session, err := h.uploads.Get(uploadID)
	if err != nil {
		response.AppError(w, err)
		return
	}
	if session.GuildID != guildID {
		response.AppError(w, errNotFound("upload session not found"))
		return
	}

	g, err := h.galleries.Get(r.Context(), guildID, session.GalleryName)
	if err != nil {
		response.AppError(w, err)
		return
	}

	assembledPath, err := h.uploads.Finalize(uploadID)
	if err != nil {
		response.AppError(w, err)
		return
	}
	defer os.Remove(assembledPath)

	data, err := os.ReadFile(assembledPath)
	if err != nil {
		_ = h.uploads.MarkFailed(uploadID, err)
		response.AppError(w, err)
		return
	}

	objectPath := objectkey.UploadPrefix(guildID, g.FolderName, time.Now().UTC().Format("2006-01-02"))
	result, err := h.service.UploadToGallery(r.Context(), guildID, session.GalleryName, objectPath, session.FileName, data)
	if err != nil {
		_ = h.uploads.MarkFailed(uploadID, err)
		response.AppError(w, err)
		return
	}

	if err := h.uploads.MarkCompleted(uploadID); err != nil {
		response.AppError(w, err)
		return
	}

	response.OK(w, result)
}

// JobStatus handles GET /uploads/jobs/{jobId}, returning an async ZIP
// ingestion job's current progress.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		response.AppError(w, err)
		return
	}
	response.OK(w, job)
}
