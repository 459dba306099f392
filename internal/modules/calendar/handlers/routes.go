package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all calendar routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/calendar", func(r chi.Router) {
		r.Post("/check", h.HandleCheck)
		r.Post("/check-multiple", h.HandleCheckMultiple)
		r.Post("/entries", h.HandleAddEntry)
		r.Delete("/entries/{entryID}", h.HandleRemoveEntry)
		r.Get("/{musicianID}", h.HandleGetEntries)
		r.Get("/{musicianID}/daily", h.HandleDailyAvailability)
	})
}
