package chunkedupload

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the chunked-upload router, mounted under /uploads.
func (h *Handler) Routes(guildContext func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(guildContext)

	r.Post("/", h.Init)
	r.Put("/{uploadId}/chunks/{index}", h.Chunk)
	r.Post("/{uploadId}/finalize", h.Finalize)
	r.Get("/{uploadId}", h.Progress)

	return r
}
