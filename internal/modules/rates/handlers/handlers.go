// Package handlers provides HTTP handlers for rate endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/domain"
	"github.com/stagefinder/stagefinder/internal/modules/rates"
)

// Handler provides HTTP handlers for rate endpoints
type Handler struct {
	engine *rates.Engine
	log    zerolog.Logger
}

// NewHandler creates a new rates handler
func NewHandler(engine *rates.Engine, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		log:    log.With().Str("handler", "rates").Logger(),
	}
}

// QuoteRequest is the body of POST /api/rates/quote. Duration arrives in
// minutes, the natural unit for booking clients.
type QuoteRequest struct {
	MusicianID      string    `json:"musician_id"`
	EventType       string    `json:"event_type"`
	Instrument      string    `json:"instrument"`
	Location        string    `json:"location"`
	EventDate       time.Time `json:"event_date"`
	DurationMinutes int       `json:"duration_minutes"`
	IsUrgent        bool      `json:"is_urgent"`
}

// HandleQuote handles POST /api/rates/quote.
func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("body", "invalid JSON"))
		return
	}

	result, err := h.engine.CalculateRate(rates.QuoteRequest{
		MusicianID: req.MusicianID,
		EventType:  domain.EventType(req.EventType),
		Instrument: req.Instrument,
		Location:   req.Location,
		EventDate:  req.EventDate,
		Duration:   time.Duration(req.DurationMinutes) * time.Minute,
		IsUrgent:   req.IsUrgent,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleGetMarketData handles GET /api/rates/market?instrument=&location=&event_type=.
func (h *Handler) HandleGetMarketData(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	public, err := h.engine.GetPublicMarketData(
		query.Get("instrument"), query.Get("location"), query.Get("event_type"),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, public)
}

// ObservationRequest is the body of POST /api/rates/market/observations.
type ObservationRequest struct {
	Instrument   string  `json:"instrument"`
	Location     string  `json:"location"`
	EventType    string  `json:"event_type"`
	ObservedRate float64 `json:"observed_rate"`
}

// HandleRecordObservation handles POST /api/rates/market/observations.
// Called once per completed, priced event.
func (h *Handler) HandleRecordObservation(w http.ResponseWriter, r *http.Request) {
	var req ObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("body", "invalid JSON"))
		return
	}

	if err := h.engine.UpdateMarketData(req.Instrument, req.Location, req.EventType, req.ObservedRate); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, domain.HTTPStatus(err), map[string]string{"error": err.Error()})
}
