package request

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	playvalidator "github.com/go-playground/validator/v10"

	"github.com/gallerybot/gallery-api/internal/middleware"
	"github.com/gallerybot/gallery-api/internal/pkg/response"
	"github.com/gallerybot/gallery-api/internal/pkg/validator"
)

// Handler handles request/ticket HTTP requests.
type Handler struct {
	service   *Service
	validator *playvalidator.Validate
}

// NewHandler creates a request handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validator: validator.New()}
}

// createBody is the JSON payload for POST /requests.
type createBody struct {
	GalleryID   string `json:"galleryId"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

// Create handles POST /requests.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())
	userID := middleware.GetUserID(r.Context())

	var body createBody
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(body); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	req, err := h.service.Create(r.Context(), CreateInput{
		GuildID:     guildID,
		UserID:      userID,
		GalleryID:   body.GalleryID,
		Title:       body.Title,
		Description: body.Description,
	})
	if err != nil {
		response.AppError(w, err)
		return
	}
	response.Created(w, req)
}

// Get handles GET /requests/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())
	id := chi.URLParam(r, "id")

	req, err := h.service.Get(r.Context(), guildID, id)
	if err != nil {
		response.AppError(w, err)
		return
	}
	response.OK(w, req)
}

// listPage is the JSON shape returned by List.
type listPage struct {
	Items      []*Request `json:"items"`
	NextCursor *string    `json:"nextCursor,omitempty"`
	HasMore    bool       `json:"hasMore"`
}

// List handles GET /requests.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())

	q := r.URL.Query()
	f := ListFilter{GuildIDs: []string{guildID}}
	if u := q.Get("userId"); u != "" {
		f.UserID = &u
	}
	if st := q.Get("status"); st != "" {
		f.Status = &st
	}
	if c := q.Get("cursor"); c != "" {
		f.Cursor = &c
	}

	result, err := h.service.List(r.Context(), f)
	if err != nil {
		response.AppError(w, err)
		return
	}
	response.OK(w, listPage{Items: result.Items, NextCursor: result.NextCursor, HasMore: result.HasMore})
}

// transitionBody is the JSON payload for PATCH /requests/{id}/status.
type transitionBody struct {
	Status string `json:"status" validate:"required,requeststatus"`
}

// Transition handles PATCH /requests/{id}/status.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())
	userID := middleware.GetUserID(r.Context())
	id := chi.URLParam(r, "id")

	var body transitionBody
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if details := validator.FieldErrors(body); details != nil {
		response.ValidationError(w, details)
		return
	}

	req, err := h.service.Transition(r.Context(), guildID, id, Status(body.Status), userID)
	if err != nil {
		response.AppError(w, err)
		return
	}
	response.OK(w, req)
}

// Remove handles DELETE /requests/{id}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), guildID, id); err != nil {
		response.AppError(w, err)
		return
	}
	response.NoContent(w)
}

// commentBody is the JSON payload for POST /requests/{id}/comments.
type commentBody struct {
	Content string `json:"content" validate:"required"`
}

// AddComment handles POST /requests/{id}/comments.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())
	userID := middleware.GetUserID(r.Context())
	id := chi.URLParam(r, "id")

	var body commentBody
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(body); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	c, err := h.service.AddComment(r.Context(), guildID, id, userID, body.Content)
	if err != nil {
		response.AppError(w, err)
		return
	}
	response.Created(w, c)
}

// ListComments handles GET /requests/{id}/comments.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	guildID := middleware.GetGuildID(r.Context())
	id := chi.URLParam(r, "id")

	comments, err := h.service.ListComments(r.Context(), guildID, id)
	if err != nil {
		response.AppError(w, err)
		return
	}
	response.OK(w, comments)
}
