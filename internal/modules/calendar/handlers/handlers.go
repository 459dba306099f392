// Package handlers provides HTTP handlers for calendar endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/domain"
	"github.com/stagefinder/stagefinder/internal/modules/calendar"
)

// Handler provides HTTP handlers for calendar endpoints
type Handler struct {
	resolver *calendar.Resolver
	log      zerolog.Logger
}

// NewHandler creates a new calendar handler
func NewHandler(resolver *calendar.Resolver, log zerolog.Logger) *Handler {
	return &Handler{
		resolver: resolver,
		log:      log.With().Str("handler", "calendar").Logger(),
	}
}

// CheckRequest is the body of POST /api/calendar/check.
type CheckRequest struct {
	MusicianID string    `json:"musician_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Location   string    `json:"location,omitempty"`
}

// CheckResponse reports availability for a window. A detected conflict is a
// normal response, not an error status.
type CheckResponse struct {
	IsAvailable     bool                `json:"is_available"`
	Conflicts       []calendar.Entry    `json:"conflicts"`
	AvailableSlots  []domain.TimeWindow `json:"available_slots"`
	RecommendedTime *time.Time          `json:"recommended_time,omitempty"`
}

// HandleCheck handles POST /api/calendar/check.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("body", "invalid JSON"))
		return
	}

	result, err := h.resolver.CheckConflicts(req.MusicianID, domain.TimeWindow{Start: req.Start, End: req.End}, req.Location)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckResponse{
		IsAvailable:     !result.HasConflict,
		Conflicts:       result.Conflicts,
		AvailableSlots:  result.AvailableSlots,
		RecommendedTime: result.RecommendedTime,
	})
}

// MultiCheckRequest is the body of POST /api/calendar/check-multiple.
type MultiCheckRequest struct {
	MusicianIDs []string  `json:"musician_ids"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// HandleCheckMultiple handles POST /api/calendar/check-multiple.
func (h *Handler) HandleCheckMultiple(w http.ResponseWriter, r *http.Request) {
	var req MultiCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("body", "invalid JSON"))
		return
	}

	partition, err := h.resolver.CheckMultipleMusiciansAvailability(req.MusicianIDs, domain.TimeWindow{Start: req.Start, End: req.End})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, partition)
}

// HandleAddEntry handles POST /api/calendar/entries. A lost overlap race
// returns 409; the caller retries against a different slot.
func (h *Handler) HandleAddEntry(w http.ResponseWriter, r *http.Request) {
	var entry calendar.Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, domain.NewValidationError("body", "invalid JSON"))
		return
	}

	created, err := h.resolver.AddEvent(r.Context(), entry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// HandleRemoveEntry handles DELETE /api/calendar/entries/{entryID}.
func (h *Handler) HandleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.resolver.RemoveEvent(chi.URLParam(r, "entryID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// HandleGetEntries handles GET /api/calendar/{musicianID}?start=&end=.
func (h *Handler) HandleGetEntries(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.resolver.GetMusicianEvents(chi.URLParam(r, "musicianID"), window)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// HandleDailyAvailability handles GET /api/calendar/{musicianID}/daily?date=.
func (h *Handler) HandleDailyAvailability(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, domain.NewValidationError("date", "must be YYYY-MM-DD"))
		return
	}

	day, err := h.resolver.GetDailyAvailability(chi.URLParam(r, "musicianID"), date.UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func parseWindow(start, end string) (domain.TimeWindow, error) {
	from, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return domain.TimeWindow{}, domain.NewValidationError("start", "must be RFC3339")
	}
	to, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return domain.TimeWindow{}, domain.NewValidationError("end", "must be RFC3339")
	}
	return domain.TimeWindow{Start: from, End: to}, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, domain.HTTPStatus(err), map[string]string{"error": err.Error()})
}
