package ingest

import "github.com/go-chi/chi/v5"

// Mount adds the ingest endpoints onto an existing router — the chunked
// upload session's router, since ingestion always follows a finalized
// upload session and shares its guild-context middleware and path space.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/{uploadId}/ingest", h.Ingest)
	r.Get("/jobs/{jobId}", h.JobStatus)
}
