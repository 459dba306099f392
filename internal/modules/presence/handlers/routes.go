package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all presence routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/presence", func(r chi.Router) {
		r.Post("/heartbeat", h.HandleHeartbeat)
		r.Get("/online", h.HandleGetOnline)
		r.Get("/{musicianID}", h.HandleGetStatus)
		r.Put("/{musicianID}/status", h.HandleUpdateStatus)
		r.Post("/{musicianID}/performance", h.HandleUpdatePerformance)
	})
}
