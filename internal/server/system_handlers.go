package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/stagefinder/stagefinder/internal/database"
	"github.com/stagefinder/stagefinder/internal/reliability"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log           zerolog.Logger
	dataDir       string
	startupTime   time.Time
	databases     []*database.DB
	backupService *reliability.BackupService
}

// NewSystemHandlers creates system handlers over all engine databases.
// backupService may be nil when backups are not configured.
func NewSystemHandlers(log zerolog.Logger, dataDir string, databases []*database.DB, backupService *reliability.BackupService) *SystemHandlers {
	return &SystemHandlers{
		log:           log.With().Str("component", "system_handlers").Logger(),
		dataDir:       dataDir,
		startupTime:   time.Now(),
		databases:     databases,
		backupService: backupService,
	}
}

// SystemStatusResponse is the response for GET /api/system/status.
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	Databases     int     `json:"databases"`
	DataDir       string  `json:"data_dir"`
}

// HandleSystemStatus handles GET /api/system/status.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	response := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		Databases:     len(h.databases),
		DataDir:       h.dataDir,
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		response.CPUPercent = cpuPercent[0]
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		response.MemoryPercent = memStat.UsedPercent
		response.MemoryUsedMB = memStat.Used / 1024 / 1024
	}

	writeJSON(w, http.StatusOK, response)
}

// HandleHealth handles GET /health and GET /api/system/health. Every
// database must answer a ping within the deadline.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.databases))
	healthy := true
	for _, db := range h.databases {
		if err := db.HealthCheck(ctx); err != nil {
			checks[db.Name()] = err.Error()
			healthy = false
		} else {
			checks[db.Name()] = "ok"
		}
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	writeJSON(w, status, map[string]interface{}{
		"status":    overall,
		"databases": checks,
	})
}

// HandleDatabaseStats handles GET /api/system/database/stats.
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]*database.Stats, len(h.databases))
	for _, db := range h.databases {
		dbStats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to read database stats")
			continue
		}
		stats[db.Name()] = dbStats
	}

	writeJSON(w, http.StatusOK, stats)
}

// HandleBackup handles POST /api/system/backup: runs one backup cycle now.
func (h *SystemHandlers) HandleBackup(w http.ResponseWriter, r *http.Request) {
	if h.backupService == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "backups not configured"})
		return
	}

	manifest, err := h.backupService.Run(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Manual backup failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, manifest)
}

// HandleListBackups handles GET /api/system/backups.
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backupService == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "backups not configured"})
		return
	}

	backups, err := h.backupService.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
