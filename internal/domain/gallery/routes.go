package gallery

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the gallery router, mounted under /galleries.
// guildContext is the external collaborator supplying a validated
// guild/user identity.
func (h *Handler) Routes(guildContext func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(guildContext)

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Post("/sync", h.Sync)
	r.Get("/{name}", h.Get)
	r.Patch("/{name}", h.Rename)
	r.Delete("/{name}", h.Remove)
	r.Get("/{name}/contents", h.Contents)

	return r
}
