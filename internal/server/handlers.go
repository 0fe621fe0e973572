// Package server provides the HTTP server and routing for finsight.
package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/finsight/internal/domain"
)

var startTime = time.Now()

// queryRequest is the POST /api/query body.
type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	Tier      string `json:"tier"`
}

// handleQuery runs one natural-language query through the pipeline.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	// A missing session id starts a fresh conversation.
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	tier, ok := parseTier(req.Tier)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown tier: "+req.Tier)
		return
	}

	result := s.cfg.Handler.Handle(r.Context(), req.Query, req.SessionID, tier)
	s.writeJSON(w, http.StatusOK, result)
}

func parseTier(raw string) (domain.UserTier, bool) {
	switch domain.UserTier(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return domain.TierFree, true
	case domain.TierFree:
		return domain.TierFree, true
	case domain.TierPremium:
		return domain.TierPremium, true
	case domain.TierEnterprise:
		return domain.TierEnterprise, true
	}
	return "", false
}

// handleStats aggregates counters from every subsystem. The query-log
// rollup is best effort; a store error drops that section only.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"cache":    s.cfg.Cache.GetStats(),
		"router":   s.cfg.Router.GetStats(),
		"budget":   s.cfg.Budget.GetSummary(),
		"sessions": map[string]int{"active": s.cfg.Sessions.Count()},
	}

	if s.cfg.Analytics != nil {
		if summary, err := s.cfg.Analytics.GetSummary(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("Query-log summary unavailable")
		} else {
			response["queries"] = summary
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleSystem reports host load and process uptime.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Load.Snapshot()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"load_1":           snap.Load1,
		"load_5":           snap.Load5,
		"mem_used_percent": snap.MemUsedPercent,
		"uptime_seconds":   int64(time.Since(startTime).Seconds()),
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "finsight",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
