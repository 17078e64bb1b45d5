package request

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the request/ticket router, mounted under /requests.
func (h *Handler) Routes(guildContext func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(guildContext)

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.Transition)
	r.Delete("/{id}", h.Remove)
	r.Post("/{id}/comments", h.AddComment)
	r.Get("/{id}/comments", h.ListComments)

	return r
}
