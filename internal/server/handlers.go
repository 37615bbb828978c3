package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"captionbandit/internal/modules/assignments"
	"captionbandit/internal/modules/selection"
)

// selectionRequest is the body for POST /api/selection
type selectionRequest struct {
	AudienceID string              `json:"audience_id"`
	Segment    string              `json:"segment"`
	Quotas     selection.TierQuota `json:"quotas"`
}

// reserveRequest is the body for POST /api/assignments/reserve
type reserveRequest struct {
	ScheduleID string                    `json:"schedule_id"`
	AudienceID string                    `json:"audience_id"`
	Slots      []assignments.SlotRequest `json:"assignments"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, db := range []interface {
		QuickCheck(context.Context) error
		Name() string
	}{s.statsDB, s.assignmentsDB} {
		if err := db.QuickCheck(ctx); err != nil {
			s.log.Error().Err(err).Str("db", db.Name()).Msg("Health check failed")
			s.writeError(w, http.StatusServiceUnavailable, "database unavailable: "+db.Name())
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AudienceID == "" {
		s.writeError(w, http.StatusBadRequest, "audience_id is required")
		return
	}
	if len(req.Quotas) == 0 {
		s.writeError(w, http.StatusBadRequest, "quotas are required")
		return
	}

	result, err := s.selector.Select(req.AudienceID, req.Segment, req.Quotas)
	if err != nil {
		s.log.Error().Err(err).Str("audience_id", req.AudienceID).Msg("Selection failed")
		s.writeError(w, http.StatusInternalServerError, "selection failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AudienceID == "" {
		s.writeError(w, http.StatusBadRequest, "audience_id is required")
		return
	}
	if req.ScheduleID == "" {
		req.ScheduleID = uuid.NewString()
	}

	result, err := s.locker.Reserve(req.ScheduleID, req.AudienceID, req.Slots)
	if err != nil {
		s.log.Error().Err(err).Str("audience_id", req.AudienceID).Msg("Reservation failed")
		s.writeError(w, http.StatusInternalServerError, "reservation failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	audienceID := chi.URLParam(r, "audienceID")
	if audienceID == "" {
		s.writeError(w, http.StatusBadRequest, "audience id is required")
		return
	}

	records, err := s.performance.GetForAudience(audienceID)
	if err != nil {
		s.log.Error().Err(err).Str("audience_id", audienceID).Msg("Stats lookup failed")
		s.writeError(w, http.StatusInternalServerError, "stats lookup failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"audience_id": audienceID,
		"records":     records,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": s.alertSink.Recent(),
	})
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := s.jobs[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown job: "+name)
		return
	}

	if err := s.sched.RunNow(job); err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("On-demand job run failed")
		s.writeError(w, http.StatusInternalServerError, "job failed: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "job": name})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
