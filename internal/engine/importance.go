package engine

import (
	"math"
	"time"

	"github.com/memlayer/memlayer/internal/config"
	"github.com/memlayer/memlayer/internal/memory"
)

// Scorer maps a memory to an importance scalar in [0, 1]. Scoring is
// pure with respect to the memory's immutable fields and its age at call
// time. Implementations are selected per tenant, so an external-model
// strategy can replace the rule-based default without touching callers.
type Scorer interface {
	Score(m *memory.Memory, now time.Time) (float64, error)
}

// recencyWindow is how long the recency component takes to fall from 1
// to 0 after creation.
const recencyWindow = 24 * time.Hour

// RuleScorer is the rule-based default. It blends a recency component,
// a role weight, and an explicit-tag boost, each in [0, 1], using
// normalized component weights.
type RuleScorer struct {
	roleWeights   map[string]float64
	weights       config.ImportanceWeights
	importantTags []string
}

// NewRuleScorer builds the default scorer from the scoring config.
func NewRuleScorer(cfg config.ScoringConfig) *RuleScorer {
	roleWeights := cfg.RoleWeights
	if len(roleWeights) == 0 {
		roleWeights = config.Default().Scoring.RoleWeights
	}
	return &RuleScorer{
		roleWeights:   roleWeights,
		weights:       cfg.Importance.Normalized(),
		importantTags: cfg.ImportantTags,
	}
}

// Score combines recency, role, and tag components. It never fails.
func (s *RuleScorer) Score(m *memory.Memory, now time.Time) (float64, error) {
	age := now.Sub(m.CreatedAt)
	recency := 1.0 - age.Seconds()/recencyWindow.Seconds()
	recency = math.Max(recency, 0)

	role, ok := s.roleWeights[string(m.Role)]
	if !ok {
		role = 0.5
	}

	tag := 0.0
	for _, t := range s.importantTags {
		if _, present := m.Metadata[t]; present {
			tag = 1.0
			break
		}
	}

	score := recency*s.weights.Recency + role*s.weights.Role + tag*s.weights.Explicit
	return clamp01(score), nil
}
