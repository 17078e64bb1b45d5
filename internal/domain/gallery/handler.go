package gallery

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	playvalidator "github.com/go-playground/validator/v10"

	"github.com/gallerybot/gallery-api/internal/middleware"
	"github.com/gallerybot/gallery-api/internal/pkg/response"
	"github.com/gallerybot/gallery-api/internal/pkg/validator"
)

// Handler handles gallery HTTP requests.
type Handler struct {
	service   *Service
	validator *playvalidator.Validate
}

// NewHandler creates a gallery handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validator: validator.New()}
}

// Create handles POST /galleries.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())
	userID := middleware.GetUserID(r.Context())

	var req CreateRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	g, err := h.service.Create(r.Context(), guildID, userID, req)
	if err != nil {
		response.AppError(w, err)
		return
	}

	response.Created(w, ToResponse(g))
}

// List handles GET /galleries.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())

	galleries, err := h.service.List(r.Context(), guildID)
	if err != nil {
		response.AppError(w, err)
		return
	}

	items := make([]Response, 0, len(galleries))
	for _, g := range galleries {
		items = append(items, ToResponse(g))
	}
	response.OK(w, items)
}

// Get handles GET /galleries/{name}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())
	name := chi.URLParam(r, "name")

	g, err := h.service.Get(r.Context(), guildID, name)
	if err != nil {
		response.AppError(w, err)
		return
	}
	response.OK(w, ToResponse(g))
}

// Rename handles PATCH /galleries/{name}.
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())
	name := chi.URLParam(r, "name")

	var req RenameRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	g, err := h.service.Rename(r.Context(), guildID, name, req)
	if err != nil {
		response.AppError(w, err)
		return
	}
	response.OK(w, ToResponse(g))
}

// Remove handles DELETE /galleries/{name}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())
	name := chi.URLParam(r, "name")

	if err := h.service.Remove(r.Context(), guildID, name); err != nil {
		response.AppError(w, err)
		return
	}
	response.NoContent(w)
}

// Contents handles GET /galleries/{name}/contents.
func (h *Handler) Contents(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())
	name := chi.URLParam(r, "name")

	items, err := h.service.Contents(r.Context(), guildID, name)
	if err != nil {
		response.AppError(w, err)
		return
	}
	response.OK(w, items)
}

// Sync handles POST /galleries/sync, recomputing every gallery's item
// count in the caller's guild directly from the object store.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())

	if err := h.service.Sync(r.Context(), guildID); err != nil {
		response.AppError(w, err)
		return
	}
	response.NoContent(w)
}
