package core

import (
	"context"
	"net/http"
	"time"

	"placement/internal/scheduler"
	"placement/internal/types"
)

// maintenanceResponse is the body of POST /v1/ops/maintenance.
type maintenanceResponse struct {
	OK      bool                   `json:"ok"`
	Results []scheduler.TaskResult `json:"results"`
}

// HandleStats serves GET /v1/ops/stats. It only reads.
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	if s.Stats == nil {
		Error(w, r, types.NewAppError(types.ErrCodeUpstreamUnavailable, "stats are not configured", nil))
		return
	}

	stats, err := s.Stats.Collect(r.Context(), s.Clock.Now())
	if err != nil {
		s.Logger.ErrorContext(r.Context(), "stats collection failed", "error", err)
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: stats})
}

// HandleMaintenance serves POST /v1/ops/maintenance: every task runs once in
// registration order and the per-task results are returned. A failed task
// does not fail the request; ok is false instead. A second trigger while one
// is running gets 409.
func (s *Server) HandleMaintenance(w http.ResponseWriter, r *http.Request) {
	if s.Maintenance == nil {
		Error(w, r, types.NewAppError(types.ErrCodeUpstreamUnavailable, "maintenance runner is not configured", nil))
		return
	}
	if !s.maintenanceMu.TryLock() {
		Error(w, r, types.NewAppError(types.ErrCodeConflictAlreadyRunning, "a maintenance run is already in progress", nil))
		return
	}
	defer s.maintenanceMu.Unlock()

	// The run outlives a dropped client; only the response is lost.
	start := time.Now()
	results := s.Maintenance.RunAll(context.WithoutCancel(r.Context()))

	resp := maintenanceResponse{OK: true, Results: results}
	for _, res := range results {
		if !res.OK() {
			resp.OK = false
		}
	}

	s.Logger.InfoContext(r.Context(), "manual maintenance run complete",
		"tasks", len(results),
		"ok", resp.OK,
		"duration", time.Since(start),
	)
	JSON(w, r, http.StatusOK, APIResponse{Data: resp})
}
