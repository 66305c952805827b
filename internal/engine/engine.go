// Package engine implements the hybrid retrieval core: importance
// scoring, temporal decay, and the deterministic ranking that combines
// them with vector similarity. The engine is read-only with respect to
// memory lifecycle; status transitions belong to the retention executor.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/memlayer/memlayer/internal/config"
	"github.com/memlayer/memlayer/internal/embedding"
	"github.com/memlayer/memlayer/internal/memory"
	"github.com/memlayer/memlayer/internal/store"
)

// Engine wires the store, the embedder, and the scoring configuration
// into the ingest and search boundaries.
type Engine struct {
	store    store.Store
	embedder embedding.Embedder
	cfg      config.ScoringConfig
	dims     int
	decay    DecayConfig
	log      *slog.Logger

	mu       sync.RWMutex
	scorers  map[string]Scorer
	fallback Scorer
}

// New creates an Engine. The embedder may be nil, in which case callers
// must supply embeddings at the boundary.
func New(st store.Store, emb embedding.Embedder, cfg config.Config) (*Engine, error) {
	dcfg, err := DecayConfigFrom(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:    st,
		embedder: emb,
		cfg:      cfg.Scoring,
		dims:     cfg.Embedding.Dimensions,
		decay:    dcfg,
		log:      slog.Default().With("component", "engine"),
		scorers:  make(map[string]Scorer),
		fallback: NewRuleScorer(cfg.Scoring),
	}, nil
}

// RegisterScorer installs a tenant-specific importance scorer, replacing
// the rule-based default for that tenant.
func (e *Engine) RegisterScorer(tenantID string, s Scorer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scorers[tenantID] = s
}

func (e *Engine) scorerFor(tenantID string) Scorer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if s, ok := e.scorers[tenantID]; ok {
		return s
	}
	return e.fallback
}

// IngestRequest is a candidate memory at the ingest boundary. Either
// Embedding or Content-to-be-embedded must be usable; when Embedding is
// nil and no embedder is configured, the memory is stored with its
// embedding pending.
type IngestRequest struct {
	TenantID           string            `json:"tenant_id"`
	ConversationID     string            `json:"conversation_id"`
	Role               memory.Role       `json:"role"`
	Content            string            `json:"content"`
	Metadata           map[string]string `json:"metadata"`
	Embedding          []float64         `json:"embedding"`
	ImportanceOverride *float64          `json:"importance_override"`
}

func (r *IngestRequest) validate(dims int) error {
	if r.TenantID == "" {
		return memory.Validatef("tenant_id", "must not be empty")
	}
	if r.Content == "" {
		return memory.Validatef("content", "must not be empty")
	}
	if !memory.ValidRoles[r.Role] {
		return memory.Validatef("role", "must be user, assistant, or system, got %q", r.Role)
	}
	if len(r.Embedding) > 0 && len(r.Embedding) != dims {
		return memory.Validatef("embedding", "dimension mismatch: got %d, configured %d", len(r.Embedding), dims)
	}
	if r.ImportanceOverride != nil {
		if v := *r.ImportanceOverride; v < 0 || v > 1 {
			return memory.Validatef("importance_override", "must be in [0, 1], got %v", v)
		}
	}
	return nil
}

// Ingest validates, embeds (when needed), scores, and stores a memory.
// Scorer failure never blocks ingest: the memory is stored with its
// importance pending and picked up by ScorePending later.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (*memory.Memory, error) {
	if err := req.validate(e.dims); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	m := &memory.Memory{
		ID:             ulid.Make().String(),
		TenantID:       req.TenantID,
		ConversationID: req.ConversationID,
		Role:           req.Role,
		Content:        req.Content,
		Metadata:       req.Metadata,
		Embedding:      req.Embedding,
		Status:         memory.StatusActive,
		CreatedAt:      now,
	}

	if len(m.Embedding) == 0 && e.embedder != nil {
		vec, err := e.embedder.Embed(ctx, req.Content)
		if err != nil {
			e.log.Warn("embedding failed, storing without vector",
				"tenant", req.TenantID, "err", err)
		} else {
			m.Embedding = vec
		}
	}

	if req.ImportanceOverride != nil {
		m.Importance = *req.ImportanceOverride
		m.ImportanceSet = true
	} else if score, err := e.scorerFor(req.TenantID).Score(m, now); err != nil {
		// Reported, not raised: importance stays pending and a retry
		// via ScorePending remains possible.
		e.log.Warn("importance scoring unavailable", "tenant", req.TenantID, "err", err)
	} else {
		m.Importance = score
		m.ImportanceSet = true
	}

	if err := e.store.InsertMemory(ctx, m); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	return m, nil
}

// SearchRequest is the search boundary input. QueryEmbedding takes
// precedence over Query text.
type SearchRequest struct {
	TenantID       string              `json:"tenant_id"`
	Query          string              `json:"query"`
	QueryEmbedding []float64           `json:"query_embedding"`
	TopK           int                 `json:"top_k"`
	ConversationID string              `json:"conversation_id"`
	MinImportance  *float64            `json:"min_importance"`
	Weights        *config.RankWeights `json:"weights"`
	// CandidateLimit bounds the store's candidate batch. Zero means no
	// bound; stores that can order by vector distance use it to
	// pre-select the nearest candidates.
	CandidateLimit int `json:"candidate_limit"`
}

// Search runs the hybrid ranking over the tenant's active memories.
// Unknown tenants yield an empty result, not an error. For fixed inputs
// the output order is identical across calls.
func (e *Engine) Search(ctx context.Context, req SearchRequest) ([]Result, error) {
	if req.TenantID == "" {
		return nil, memory.Validatef("tenant_id", "must not be empty")
	}
	if req.TopK <= 0 {
		return nil, memory.Validatef("top_k", "must be a positive integer, got %d", req.TopK)
	}

	query := req.QueryEmbedding
	if len(query) == 0 {
		if req.Query == "" {
			return nil, memory.Validatef("query", "either query or query_embedding is required")
		}
		if e.embedder == nil {
			return nil, memory.Validatef("query_embedding", "no embedder configured; supply query_embedding")
		}
		vec, err := e.embedder.Embed(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		query = vec
	}
	if len(query) != e.dims {
		return nil, memory.Validatef("query_embedding", "dimension mismatch: got %d, configured %d", len(query), e.dims)
	}

	if req.CandidateLimit < 0 {
		return nil, memory.Validatef("candidate_limit", "must be non-negative, got %d", req.CandidateLimit)
	}

	filter := memory.Filter{
		ConversationID: req.ConversationID,
		QueryEmbedding: query,
		CandidateLimit: req.CandidateLimit,
	}
	if req.MinImportance != nil {
		filter.MinImportance = *req.MinImportance
		filter.HasMinImp = true
	}

	candidates, err := e.store.ActiveMemories(ctx, req.TenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	weights := e.cfg.Weights
	if req.Weights != nil && !req.Weights.IsZero() {
		weights = *req.Weights
	}

	return Rank(query, candidates, req.TopK, weights, e.decay, time.Now().UTC())
}

// ScorePending computes importance for memories still awaiting a score.
// Safe to re-run after a crash: the store ignores writes for memories
// whose importance is already set.
func (e *Engine) ScorePending(ctx context.Context, tenantID string) (int, error) {
	if tenantID == "" {
		return 0, memory.Validatef("tenant_id", "must not be empty")
	}

	pending, err := e.store.PendingImportance(ctx, tenantID, 0)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	scorer := e.scorerFor(tenantID)
	now := time.Now().UTC()
	scored := 0
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return scored, err
		}
		m := &pending[i]
		score, err := scorer.Score(m, now)
		if err != nil {
			e.log.Warn("scoring failed, leaving pending", "memory", m.ID, "err", err)
			continue
		}
		applied, err := e.store.SetImportance(ctx, tenantID, m.ID, score)
		if err != nil {
			return scored, fmt.Errorf("set importance for %s: %w", m.ID, err)
		}
		if applied {
			scored++
		}
	}

	e.log.Info("scored pending memories", "tenant", tenantID, "count", scored)
	return scored, nil
}

// DecaySettings exposes the pinned decay configuration, e.g. for the
// health endpoint.
func (e *Engine) DecaySettings() DecayConfig {
	return e.decay
}
