package engine

import (
	"testing"
	"time"

	"github.com/memlayer/memlayer/internal/config"
	"github.com/memlayer/memlayer/internal/memory"
)

func TestRuleScorerRecencyOrdering(t *testing.T) {
	scorer := NewRuleScorer(config.Default().Scoring)
	now := time.Now()

	fresh := &memory.Memory{Role: memory.RoleUser, CreatedAt: now}
	stale := &memory.Memory{Role: memory.RoleUser, CreatedAt: now.Add(-48 * time.Hour)}

	freshScore, err := scorer.Score(fresh, now)
	if err != nil {
		t.Fatalf("Score(fresh): %v", err)
	}
	staleScore, err := scorer.Score(stale, now)
	if err != nil {
		t.Fatalf("Score(stale): %v", err)
	}
	if freshScore <= staleScore {
		t.Errorf("fresh memory should outscore stale: %v <= %v", freshScore, staleScore)
	}
}

func TestRuleScorerRoleOrdering(t *testing.T) {
	scorer := NewRuleScorer(config.Default().Scoring)
	now := time.Now()

	score := func(role memory.Role) float64 {
		s, err := scorer.Score(&memory.Memory{Role: role, CreatedAt: now}, now)
		if err != nil {
			t.Fatalf("Score(%s): %v", role, err)
		}
		return s
	}

	system := score(memory.RoleSystem)
	user := score(memory.RoleUser)
	assistant := score(memory.RoleAssistant)

	if !(system > user && user > assistant) {
		t.Errorf("role ordering wrong: system=%v user=%v assistant=%v", system, user, assistant)
	}
}

func TestRuleScorerUnknownRoleNeutral(t *testing.T) {
	scorer := NewRuleScorer(config.Default().Scoring)
	now := time.Now()

	unknown, err := scorer.Score(&memory.Memory{Role: "tool", CreatedAt: now}, now)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	assistant, err := scorer.Score(&memory.Memory{Role: memory.RoleAssistant, CreatedAt: now}, now)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if unknown != assistant {
		t.Errorf("unknown role should score like the 0.5 neutral weight: %v != %v", unknown, assistant)
	}
}

func TestRuleScorerTagBoost(t *testing.T) {
	scorer := NewRuleScorer(config.Default().Scoring)
	now := time.Now()

	plain := &memory.Memory{Role: memory.RoleUser, CreatedAt: now}
	pinned := &memory.Memory{
		Role:      memory.RoleUser,
		CreatedAt: now,
		Metadata:  map[string]string{"pinned": "true"},
	}

	plainScore, _ := scorer.Score(plain, now)
	pinnedScore, _ := scorer.Score(pinned, now)
	if pinnedScore <= plainScore {
		t.Errorf("pinned memory should outscore plain: %v <= %v", pinnedScore, plainScore)
	}
}

func TestRuleScorerClamped(t *testing.T) {
	scorer := NewRuleScorer(config.Default().Scoring)
	now := time.Now()

	best := &memory.Memory{
		Role:      memory.RoleSystem,
		CreatedAt: now,
		Metadata:  map[string]string{"pinned": "true", "important": "true"},
	}
	worst := &memory.Memory{
		Role:      memory.RoleAssistant,
		CreatedAt: now.Add(-365 * 24 * time.Hour),
	}

	for _, m := range []*memory.Memory{best, worst} {
		score, err := scorer.Score(m, now)
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if score < 0 || score > 1 {
			t.Errorf("score out of [0, 1]: %v", score)
		}
	}
}
