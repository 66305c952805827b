package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/memlayer/memlayer/internal/engine"
	"github.com/memlayer/memlayer/internal/memory"
	"github.com/memlayer/memlayer/internal/retention"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req engine.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	m, err := s.engine.Ingest(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":                 m.ID,
		"status":             m.Status,
		"importance_pending": !m.ImportanceSet,
	})
}

func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []engine.IngestRequest `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	type itemError struct {
		Index   int    `json:"index"`
		Message string `json:"error"`
	}
	// Both lists serialize as [] rather than null when empty.
	created := []map[string]any{}
	errs := []itemError{}

	for i, item := range req.Messages {
		m, err := s.engine.Ingest(r.Context(), item)
		if err != nil {
			errs = append(errs, itemError{Index: i, Message: err.Error()})
			continue
		}
		created = append(created, map[string]any{"id": m.ID, "status": m.Status})
	}

	code := http.StatusCreated
	if len(errs) > 0 {
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, map[string]any{"created": created, "errors": errs})
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	memoryID := chi.URLParam(r, "memoryID")
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id query parameter required")
		return
	}

	m, err := s.store.GetMemory(r.Context(), tenantID, memoryID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// searchResult is the wire shape for one ranked memory: the final score
// plus every component so callers can recompute rankings under
// alternate weights without re-querying.
type searchResult struct {
	MemoryID          string      `json:"memory_id"`
	Score             float64     `json:"score"`
	Similarity        float64     `json:"similarity"`
	Importance        float64     `json:"importance"`
	Decay             float64     `json:"decay"`
	ImportancePending bool        `json:"importance_pending"`
	Content           string      `json:"content"`
	Role              memory.Role `json:"role"`
	CreatedAt         time.Time   `json:"created_at"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req engine.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ranked, err := s.engine.Search(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	results := make([]searchResult, 0, len(ranked))
	for _, item := range ranked {
		results = append(results, searchResult{
			MemoryID:          item.Memory.ID,
			Score:             item.Score,
			Similarity:        item.Breakdown.Similarity,
			Importance:        item.Breakdown.Importance,
			Decay:             item.Breakdown.Decay,
			ImportancePending: item.Breakdown.ImportancePending,
			Content:           item.Memory.Content,
			Role:              item.Memory.Role,
			CreatedAt:         item.Memory.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(results),
		"items": results,
	})
}

func (s *Server) handleRetentionRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string   `json:"tenant_id"`
		Actions  []string `json:"actions"`
		DryRun   bool     `json:"dry_run"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var actions retention.ActionSet
	for _, a := range req.Actions {
		switch a {
		case "archive":
			actions.Archive = true
		case "delete":
			actions.Delete = true
		default:
			writeError(w, http.StatusBadRequest, "unknown action "+strconv.Quote(a))
			return
		}
	}

	result, err := s.executor.Run(r.Context(), req.TenantID, actions, req.DryRun)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleScoringRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	scored, err := s.engine.ScorePending(r.Context(), req.TenantID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scored": scored})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	policy, err := s.store.GetPolicy(r.Context(), tenantID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func (s *Server) handlePutPolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var policy memory.Policy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	policy.TenantID = tenantID

	if policy.MaxAgeDays < 0 || policy.MaxItems < 0 || policy.DeleteAfterDays < 0 {
		writeError(w, http.StatusBadRequest, "day and item limits must be non-negative")
		return
	}
	if policy.ImportanceThreshold < 0 || policy.ImportanceThreshold > 1 {
		writeError(w, http.StatusBadRequest, "importance_threshold must be in [0, 1]")
		return
	}

	if err := s.store.PutPolicy(r.Context(), &policy); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	if err := s.store.DeletePolicy(r.Context(), tenantID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	runID := r.URL.Query().Get("run_id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.store.AuditTrail(r.Context(), tenantID, runID, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(records),
		"items": records,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	stats, err := s.store.TenantStats(r.Context(), tenantID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
