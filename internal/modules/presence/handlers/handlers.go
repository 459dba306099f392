// Package handlers provides HTTP handlers for presence endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stagefinder/stagefinder/internal/domain"
	"github.com/stagefinder/stagefinder/internal/modules/calendar"
	"github.com/stagefinder/stagefinder/internal/modules/presence"
)

// upcomingWindow bounds the heartbeat response's calendar preview.
const upcomingWindow = 7 * 24 * time.Hour

// CalendarReader is the slice of the conflict resolver the heartbeat
// response needs.
type CalendarReader interface {
	GetMusicianEvents(musicianID string, window domain.TimeWindow) ([]calendar.Entry, error)
}

// Handler provides HTTP handlers for presence endpoints
type Handler struct {
	tracker  *presence.Tracker
	calendar CalendarReader
	log      zerolog.Logger
}

// NewHandler creates a new presence handler
func NewHandler(tracker *presence.Tracker, calendarReader CalendarReader, log zerolog.Logger) *Handler {
	return &Handler{
		tracker:  tracker,
		calendar: calendarReader,
		log:      log.With().Str("handler", "presence").Logger(),
	}
}

// HeartbeatRequest is the body of POST /api/presence/heartbeat.
type HeartbeatRequest struct {
	MusicianID string              `json:"musician_id"`
	Location   *domain.Coordinates `json:"location,omitempty"`
}

// HeartbeatResponse acknowledges a heartbeat with a calendar preview:
// the musician's upcoming entries plus any tentative/confirmed overlaps
// among them.
type HeartbeatResponse struct {
	Status             *presence.MusicianPresence `json:"status"`
	UpcomingEvents     []calendar.Entry           `json:"upcoming_events"`
	PotentialConflicts []calendar.Entry           `json:"potential_conflicts"`
}

// HandleHeartbeat handles POST /api/presence/heartbeat.
func (h *Handler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("body", "invalid JSON"))
		return
	}

	snapshot, err := h.tracker.Heartbeat(req.MusicianID, req.Location)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now().UTC()
	upcoming, err := h.calendar.GetMusicianEvents(req.MusicianID, domain.TimeWindow{
		Start: now,
		End:   now.Add(upcomingWindow),
	})
	if err != nil {
		// The calendar preview is advisory; the heartbeat itself succeeded
		h.log.Warn().Err(err).Str("musician_id", req.MusicianID).Msg("Calendar preview failed")
		upcoming = []calendar.Entry{}
	}

	writeJSON(w, http.StatusOK, HeartbeatResponse{
		Status:             snapshot,
		UpcomingEvents:     upcoming,
		PotentialConflicts: tentativeOverlaps(upcoming),
	})
}

// HandleGetStatus handles GET /api/presence/{musicianID}.
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.tracker.GetStatus(chi.URLParam(r, "musicianID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// HandleUpdateStatus handles PUT /api/presence/{musicianID}/status.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var update presence.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, domain.NewValidationError("body", "invalid JSON"))
		return
	}

	snapshot, err := h.tracker.UpdateStatus(chi.URLParam(r, "musicianID"), update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// HandleGetOnline handles GET /api/presence/online.
func (h *Handler) HandleGetOnline(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := presence.Filters{
		Location:   query.Get("location"),
		EventType:  domain.EventType(query.Get("event_type")),
		Instrument: query.Get("instrument"),
		BudgetMin:  queryFloat(query.Get("budget_min")),
		BudgetMax:  queryFloat(query.Get("budget_max")),
	}
	if lat, lon := queryFloat(query.Get("lat")), queryFloat(query.Get("lon")); lat != 0 || lon != 0 {
		filters.Coords = &domain.Coordinates{Latitude: lat, Longitude: lon}
		filters.RadiusKM = queryFloat(query.Get("radius_km"))
	}

	online, err := h.tracker.GetOnlineMusicians(filters)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"musicians": online,
		"count":     len(online),
	})
}

// HandleUpdatePerformance handles POST /api/presence/{musicianID}/performance.
func (h *Handler) HandleUpdatePerformance(w http.ResponseWriter, r *http.Request) {
	var delta presence.PerformanceDelta
	if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
		writeError(w, domain.NewValidationError("body", "invalid JSON"))
		return
	}

	snapshot, err := h.tracker.UpdatePerformance(chi.URLParam(r, "musicianID"), delta)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// tentativeOverlaps returns tentative entries that collide with a confirmed
// entry in the same set.
func tentativeOverlaps(entries []calendar.Entry) []calendar.Entry {
	conflicts := []calendar.Entry{}
	for _, candidate := range entries {
		if candidate.Status != calendar.StatusTentative {
			continue
		}
		for _, other := range entries {
			if other.Status == calendar.StatusConfirmed && candidate.Window().Overlaps(other.Window()) {
				conflicts = append(conflicts, candidate)
				break
			}
		}
	}
	return conflicts
}

func queryFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, domain.HTTPStatus(err), map[string]string{"error": err.Error()})
}
