package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/metrics-updater/internal/modules/runs"
	"github.com/aristath/metrics-updater/internal/scheduler"
	"github.com/aristath/metrics-updater/internal/version"
)

const maxRunsLimit = 200

// handleHealth reports service and database health. A database that fails
// its ping makes the service degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	databases := make(map[string]string, len(s.databases))
	for name, db := range s.databases {
		if db == nil {
			continue
		}
		if err := db.Ping(ctx); err != nil {
			databases[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		databases[name] = "ok"
	}

	response := map[string]interface{}{
		"status":    status,
		"version":   version.Version,
		"service":   "metrics-updater",
		"databases": databases,
	}
	if s.updater != nil {
		response["state"] = s.updater.State()
	}
	if s.refresh != nil {
		response["refresh_running"] = s.refresh.Running()
	}

	s.writeJSON(w, code, response)
}

// handleListRuns returns recent runs
// GET /api/runs?limit=20
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunsLimit {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	list, err := s.history.List(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list runs")
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if list == nil {
		list = []runs.Run{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  list,
		"count": len(list),
	})
}

// handleLatestRun returns the most recent run with its events
// GET /api/runs/latest
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.history.Latest()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get latest run")
		s.writeError(w, http.StatusInternalServerError, "failed to get latest run")
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

// handleGetRun returns one run with its events
// GET /api/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.history.Get(id)
	if errors.Is(err, runs.ErrRunNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("run_id", id).Msg("Failed to get run")
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

// handleTriggerRun starts a refresh cycle in the background
// POST /api/runs/trigger
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	err := s.refresh.TriggerAsync(runs.TriggerAPI)
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to trigger refresh")
		s.writeError(w, http.StatusInternalServerError, "failed to trigger refresh")
		return
	}

	s.log.Info().Msg("Manual refresh triggered")
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Refresh cycle started",
	})
}

// handleCandidates returns the ordered work list a cycle would process now
// GET /api/candidates
func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.updater.Candidates(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to select candidates")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"candidates": candidates,
		"count":      len(candidates),
	})
}

// handleJobs lists scheduled jobs
// GET /api/system/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobInfo{}
	if s.jobs != nil {
		jobs = s.jobs.Jobs()
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// handleListBackups lists offsite backups, newest first
// GET /api/backups
func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil || !s.backups.UploadEnabled() {
		s.writeError(w, http.StatusNotFound, "backups are not configured")
		return
	}

	backups, err := s.backups.ListBackups(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list backups")
		s.writeError(w, http.StatusBadGateway, "failed to list backups")
		return
	}
	sort.SliceStable(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
