package api

import (
	"net/http"
	"time"

	"github.com/snarg/score-engine/internal/jobs"
)

// WatcherStatusSource reports the drop-directory watcher's state, if one is
// running.
type WatcherStatusSource interface {
	Status() string
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Model         string            `json:"model"`
	Queue         jobs.QueueStats   `json:"queue"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	orch      *jobs.Orchestrator
	watcher   WatcherStatusSource
	model     string
	version   string
	startTime time.Time
}

func NewHealthHandler(orch *jobs.Orchestrator, watcher WatcherStatusSource, model, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		orch:      orch,
		watcher:   watcher,
		model:     model,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	stats := h.orch.Stats()
	checks["queue"] = "ok"

	if h.watcher != nil {
		ws := h.watcher.Status()
		checks["file_watcher"] = ws
		if ws == "error" {
			status = "degraded"
		}
	} else {
		checks["file_watcher"] = "not_configured"
	}

	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Model:         h.model,
		Queue:         stats,
		Checks:        checks,
	})
}
