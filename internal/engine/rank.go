package engine

import (
	"math"
	"sort"
	"time"

	"github.com/memlayer/memlayer/internal/config"
	"github.com/memlayer/memlayer/internal/memory"
)

// Breakdown carries the component scores alongside the final score so
// callers can recompute rankings under alternate weights without
// re-querying.
type Breakdown struct {
	Similarity float64 `json:"similarity"`
	Importance float64 `json:"importance"`
	Decay      float64 `json:"decay"`
	// ImportancePending distinguishes "not yet scored" (ranked as
	// importance 0) from a genuinely low importance.
	ImportancePending bool `json:"importance_pending"`
}

// Result is one ranked memory.
type Result struct {
	Memory    memory.Memory `json:"memory"`
	Score     float64       `json:"score"`
	Breakdown Breakdown     `json:"breakdown"`
}

// Rank scores candidates against the query embedding and returns them in
// deterministic order:
//
//	score = similarity*w_sim + importance*w_imp + decay(age)*w_decay
//
// with cosine similarity normalized to [0, 1] via (cos+1)/2 so all three
// components share range and sign. Supplied weights are normalized to
// sum to 1 rather than rejected. Ties break by created_at descending,
// then id ascending, guaranteeing a total order.
//
// Candidates whose status is not active are excluded. A candidate with a
// stored embedding of a different dimension than the query is a
// configuration error and fails the call.
func Rank(query []float64, candidates []memory.Memory, topK int, weights config.RankWeights, dcfg DecayConfig, now time.Time) ([]Result, error) {
	if topK <= 0 {
		return nil, memory.Validatef("top_k", "must be a positive integer, got %d", topK)
	}
	if len(query) == 0 {
		return nil, memory.Validatef("query_embedding", "must not be empty")
	}

	w := weights.Normalized()

	results := make([]Result, 0, len(candidates))
	for i := range candidates {
		m := &candidates[i]
		if m.Status != memory.StatusActive {
			continue
		}
		if len(m.Embedding) == 0 {
			// Embedding still pending; nothing to rank against.
			continue
		}
		if len(m.Embedding) != len(query) {
			return nil, memory.Validatef("embedding",
				"dimension mismatch: query has %d, memory %s has %d",
				len(query), m.ID, len(m.Embedding))
		}

		similarity := (cosineSimilarity(query, m.Embedding) + 1) / 2
		decay := Decay(m.Age(now), dcfg)

		importance := 0.0
		pending := !m.ImportanceSet
		if m.ImportanceSet {
			importance = m.Importance
		}

		score := similarity*w.Similarity + importance*w.Importance + decay*w.Decay
		results = append(results, Result{
			Memory: *m,
			Score:  score,
			Breakdown: Breakdown{
				Similarity:        similarity,
				Importance:        importance,
				Decay:             decay,
				ImportancePending: pending,
			},
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Memory.CreatedAt.Equal(results[j].Memory.CreatedAt) {
			return results[i].Memory.CreatedAt.After(results[j].Memory.CreatedAt)
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
