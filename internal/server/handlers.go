package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/harborwatch/harborwatch-monitor/internal/db"
	"github.com/harborwatch/harborwatch-monitor/internal/models"
)

// registerHandlers registers HTTP handlers.
func (s *Server) registerHandlers(mux *http.ServeMux) {
	// Health and operational endpoints
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /info", s.handleInfo)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Monitoring endpoints
	mux.HandleFunc("GET /api/v1/reports", s.handleListReports)
	mux.HandleFunc("GET /api/v1/reports/latest", s.handleLatestReport)
	mux.HandleFunc("GET /api/v1/insights", s.handleListInsights)
	mux.HandleFunc("POST /api/v1/sweep", s.limited(s.handleTriggerSweep))

	// Anomaly endpoints
	mux.HandleFunc("GET /api/v1/anomalies", s.handleListAnomalies)
	mux.HandleFunc("GET /api/v1/anomalies/summary", s.handleAnomalySummary)

	// Remediation endpoints
	mux.HandleFunc("GET /api/v1/actions/pending", s.handlePendingActions)
	mux.HandleFunc("GET /api/v1/actions/approved", s.handleApprovedActions)
	mux.HandleFunc("GET /api/v1/actions/history", s.handleActionHistory)
	mux.HandleFunc("GET /api/v1/actions/summary", s.handleActionSummary)
	mux.HandleFunc("GET /api/v1/actions/{id}", s.handleGetAction)
	mux.HandleFunc("POST /api/v1/actions/{id}/approve", s.limited(s.handleApproveAction))
	mux.HandleFunc("POST /api/v1/actions/{id}/reject", s.limited(s.handleRejectAction))
	mux.HandleFunc("POST /api/v1/actions/{id}/execute", s.limited(s.handleExecuteAction))

	// Live event stream
	if s.deps.Hub != nil {
		mux.HandleFunc("GET /api/v1/ws", s.deps.Hub.HandleWS)
	}
}

// limited applies per-client rate limiting to mutating endpoints when
// configured.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Middleware(next)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// queryInt parses an integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// queryTime parses an RFC3339 query parameter. ok is false when the
// value is present but malformed.
func queryTime(r *http.Request, name string) (t *time.Time, ok bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	return &parsed, true
}

// ─── Health ───────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if !running || s.deps.Store.Ping(r.Context()) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	startedAt := s.startedAt
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":           "harborwatch-monitor",
		"version":        "0.1.0",
		"environments":   len(s.cfg.Environments),
		"llm_enabled":    s.cfg.LLM.Enabled,
		"sweep_interval": s.cfg.SweepInterval().String(),
		"uptime":         time.Since(startedAt).Round(time.Second).String(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// ─── Monitoring ───────────────────────────────────────────────────────────────

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	since, ok := queryTime(r, "since")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid since parameter, expected RFC3339 timestamp")
		return
	}

	reports := s.deps.Insights.GetReports(since, queryInt(r, "limit", 20))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Insights.LatestReport()
	if report == nil {
		writeError(w, http.StatusNotFound, "no reports generated yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListInsights(w http.ResponseWriter, r *http.Request) {
	since, ok := queryTime(r, "since")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid since parameter, expected RFC3339 timestamp")
		return
	}

	result := s.deps.Insights.GetInsights(since, queryInt(r, "limit", 50))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"insights": result,
		"count":    len(result),
	})
}

func (s *Server) handleTriggerSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Monitor.RunSweep(r.Context())
	if err != nil {
		s.deps.Logger.Error("manual sweep failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sweep failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ─── Anomalies ────────────────────────────────────────────────────────────────

func (s *Server) handleListAnomalies(w http.ResponseWriter, r *http.Request) {
	q := db.AnomalyQuery{
		ContainerID: r.URL.Query().Get("container_id"),
		MetricType:  models.MetricType(r.URL.Query().Get("metric_type")),
		Limit:       queryInt(r, "limit", 100),
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from parameter, expected RFC3339 timestamp")
			return
		}
		q.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to parameter, expected RFC3339 timestamp")
			return
		}
		q.To = t
	}

	anomalies, err := s.deps.Store.QueryAnomalies(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": anomalies,
		"count":     len(anomalies),
	})
}

func (s *Server) handleAnomalySummary(w http.ResponseWriter, r *http.Request) {
	containerID := r.URL.Query().Get("container_id")
	if containerID == "" {
		writeError(w, http.StatusBadRequest, "container_id parameter is required")
		return
	}

	summary, err := s.deps.Store.AnomalySummary(r.Context(), containerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ─── Remediation ──────────────────────────────────────────────────────────────

func (s *Server) handlePendingActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.deps.Remediation.Pending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"actions": actions,
		"count":   len(actions),
	})
}

func (s *Server) handleApprovedActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.deps.Remediation.Approved(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"actions": actions,
		"count":   len(actions),
	})
}

func (s *Server) handleActionHistory(w http.ResponseWriter, r *http.Request) {
	var status models.ActionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = models.ActionStatus(raw)
		switch status {
		case models.StatusPending, models.StatusApproved, models.StatusRejected,
			models.StatusExecuting, models.StatusExecuted, models.StatusFailed:
		default:
			writeError(w, http.StatusBadRequest, "invalid status parameter")
			return
		}
	}

	actions, err := s.deps.Remediation.History(r.Context(), status,
		queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"actions": actions,
		"count":   len(actions),
	})
}

func (s *Server) handleActionSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Remediation.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	action, err := s.deps.Remediation.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if action == nil {
		writeError(w, http.StatusNotFound, "action not found")
		return
	}
	writeJSON(w, http.StatusOK, action)
}

type approveRequest struct {
	ApprovedBy string `json:"approved_by"`
}

func (s *Server) handleApproveAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req approveRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.ApprovedBy == "" {
		req.ApprovedBy = "api"
	}

	action, ok, err := s.deps.Remediation.Approve(r.Context(), id, req.ApprovedBy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		s.writeTransitionRefused(w, r, id, "only pending actions can be approved")
		return
	}
	writeJSON(w, http.StatusOK, action)
}

type rejectRequest struct {
	RejectedBy string `json:"rejected_by"`
	Reason     string `json:"reason"`
}

func (s *Server) handleRejectAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req rejectRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.RejectedBy == "" {
		req.RejectedBy = "api"
	}

	action, ok, err := s.deps.Remediation.Reject(r.Context(), id, req.RejectedBy, req.Reason)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		s.writeTransitionRefused(w, r, id, "only pending actions can be rejected")
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	result := s.deps.Remediation.Execute(r.Context(), r.PathValue("id"))

	status := http.StatusOK
	if !result.Success {
		switch result.Message {
		case "Action not found":
			status = http.StatusNotFound
		case "Only approved actions can be executed. Approve the action first.":
			status = http.StatusConflict
		}
	}
	writeJSON(w, status, result)
}

// writeTransitionRefused distinguishes a missing action from one in the
// wrong state.
func (s *Server) writeTransitionRefused(w http.ResponseWriter, r *http.Request, id, conflictMsg string) {
	action, err := s.deps.Remediation.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if action == nil {
		writeError(w, http.StatusNotFound, "action not found")
		return
	}
	writeError(w, http.StatusConflict, conflictMsg)
}
