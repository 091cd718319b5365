package audithttp

import "github.com/go-chi/chi/v5"

// Routes mounts the admin audit trail endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleTrail)
	r.Get("/export", h.handleExport)
	return r
}
