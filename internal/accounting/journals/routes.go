package journals

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// MountRoutes registers the journal endpoints under /gl/v1/journal-entries.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/post", h.lifecycle(func(s *Service, r *http.Request, id uuid.UUID) (*JournalEntry, error) {
		return s.Post(r.Context(), id)
	}))
	r.Post("/{id}/park", h.lifecycle(func(s *Service, r *http.Request, id uuid.UUID) (*JournalEntry, error) {
		return s.Park(r.Context(), id)
	}))
	r.Post("/{id}/submit", h.lifecycle(func(s *Service, r *http.Request, id uuid.UUID) (*JournalEntry, error) {
		return s.Submit(r.Context(), id)
	}))
	r.Post("/{id}/approve", h.lifecycle(func(s *Service, r *http.Request, id uuid.UUID) (*JournalEntry, error) {
		return s.Approve(r.Context(), id)
	}))
	r.Post("/{id}/reject", h.lifecycle(func(s *Service, r *http.Request, id uuid.UUID) (*JournalEntry, error) {
		return s.Reject(r.Context(), id)
	}))
	r.Post("/{id}/cancel", h.lifecycle(func(s *Service, r *http.Request, id uuid.UUID) (*JournalEntry, error) {
		return s.Cancel(r.Context(), id)
	}))
	r.Post("/{id}/reverse", h.Reverse)
}
