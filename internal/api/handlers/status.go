package handlers

import (
	"net/http"
	"time"

	"github.com/eargollo/hash256/internal/scheduler"
	"github.com/eargollo/hash256/internal/session"
)

// PurgeJob is the scheduler name of the history retention job.
const PurgeJob = "history-purge"

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	Session *session.Loop
	Sched   *scheduler.Scheduler // nil when history is disabled
	Version string
}

type statusResponse struct {
	session.View
	Version string     `json:"version"`
	Purge   *purgeInfo `json:"history_purge,omitempty"`
}

type purgeInfo struct {
	Cron      string     `json:"cron"`
	NextRunAt *time.Time `json:"next_run_at"`
}

// ServeHTTP returns the current session view as JSON.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v, err := h.Session.Snapshot(r.Context())
	if err != nil {
		writeSessionError(w, "status: snapshot", err)
		return
	}
	resp := statusResponse{View: v, Version: h.Version}
	if h.Sched != nil {
		resp.Purge = &purgeInfo{
			Cron:      h.Sched.CronExpr(PurgeJob),
			NextRunAt: h.Sched.NextRunAt(PurgeJob),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
