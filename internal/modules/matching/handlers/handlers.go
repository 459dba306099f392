// Package handlers provides HTTP handlers for matching endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/domain"
	"github.com/stagefinder/stagefinder/internal/modules/matching"
)

// Handler provides HTTP handlers for matching endpoints
type Handler struct {
	orchestrator *matching.Orchestrator
	log          zerolog.Logger
}

// NewHandler creates a new matching handler
func NewHandler(orchestrator *matching.Orchestrator, log zerolog.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		log:          log.With().Str("handler", "matching").Logger(),
	}
}

// MusicianSearchRequest is the body of POST /api/matching/musicians: the
// event criteria to match against.
type MusicianSearchRequest struct {
	EventID         string              `json:"event_id,omitempty"`
	EventType       string              `json:"event_type"`
	Instrument      string              `json:"instrument"`
	Date            time.Time           `json:"date"`
	DurationMinutes int                 `json:"duration_minutes"`
	Budget          float64             `json:"budget"`
	Location        string              `json:"location"`
	Coords          *domain.Coordinates `json:"coords,omitempty"`
}

// HandleSearchMusicians handles POST /api/matching/musicians.
func (h *Handler) HandleSearchMusicians(w http.ResponseWriter, r *http.Request) {
	var req MusicianSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("body", "invalid JSON"))
		return
	}

	event := domain.Event{
		ID:         req.EventID,
		EventType:  domain.EventType(req.EventType),
		Instrument: req.Instrument,
		Date:       req.Date,
		Duration:   time.Duration(req.DurationMinutes) * time.Minute,
		Budget:     req.Budget,
		Location:   req.Location,
	}
	if req.Coords != nil {
		event.Coords = *req.Coords
	}

	result, err := h.orchestrator.FindMusiciansForEvent(r.Context(), event)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleSearchEvents handles GET /api/matching/events/{musicianID}.
func (h *Handler) HandleSearchEvents(w http.ResponseWriter, r *http.Request) {
	result, err := h.orchestrator.FindEventsForMusician(r.Context(), chi.URLParam(r, "musicianID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, domain.HTTPStatus(err), map[string]string{"error": err.Error()})
}
