package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 38080 {
		t.Errorf("port = %d, want 38080", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %s, want sqlite", cfg.Database.Driver)
	}
	if cfg.Embedding.Dimensions != 256 {
		t.Errorf("dimensions = %d, want 256", cfg.Embedding.Dimensions)
	}
	if cfg.Scoring.DecayVersion != "exp-v1" {
		t.Errorf("decay version = %s, want exp-v1", cfg.Scoring.DecayVersion)
	}

	w := cfg.Scoring.Weights
	if sum := w.Similarity + w.Importance + w.Decay; math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("default rank weights sum to %v, want 1.0", sum)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/memlayer.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != Default().Server.Port {
		t.Error("missing file should yield defaults")
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 9999
scoring:
  weights:
    similarity: 0.5
    importance: 0.3
    decay: 0.2
  decay_half_life_days: 14
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Scoring.Weights.Similarity != 0.5 {
		t.Errorf("similarity = %v, want 0.5", cfg.Scoring.Weights.Similarity)
	}
	if cfg.Scoring.DecayHalfLifeDays != 14 {
		t.Errorf("half life = %v, want 14", cfg.Scoring.DecayHalfLifeDays)
	}
	// Untouched sections keep their defaults.
	if cfg.Embedding.Dimensions != 256 {
		t.Errorf("dimensions = %d, want default 256", cfg.Embedding.Dimensions)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad driver", "database:\n  driver: mongodb\n"},
		{"zero dimensions", "embedding:\n  dimensions: -1\n"},
		{"zero half life", "scoring:\n  decay_half_life_days: 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tc.yaml), 0644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRankWeightsNormalized(t *testing.T) {
	w := RankWeights{Similarity: 0.6, Importance: 0.6, Decay: 0.6}.Normalized()
	if sum := w.Similarity + w.Importance + w.Decay; math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("normalized weights sum to %v, want 1.0", sum)
	}
	if math.Abs(w.Similarity-1.0/3) > 1e-9 {
		t.Errorf("similarity = %v, want 1/3", w.Similarity)
	}

	// All-zero falls back to defaults instead of dividing by zero.
	zero := RankWeights{}.Normalized()
	if zero != Default().Scoring.Weights {
		t.Errorf("zero weights normalized to %+v, want defaults", zero)
	}
}

func TestImportanceWeightsNormalized(t *testing.T) {
	w := ImportanceWeights{Recency: 2, Role: 1, Explicit: 1}.Normalized()
	if w.Recency != 0.5 || w.Role != 0.25 || w.Explicit != 0.25 {
		t.Errorf("normalized = %+v, want 0.5/0.25/0.25", w)
	}
}

func TestListenAddr(t *testing.T) {
	cfg := Default()
	if got := cfg.ListenAddr(); got != "127.0.0.1:38080" {
		t.Errorf("listen addr = %s", got)
	}
}

func TestLoadRejectsZeroHalfLifeOnly(t *testing.T) {
	// Decay half-life zero means the formula divides by zero; the loader
	// refuses the config before any component sees it.
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scoring:\n  decay_half_life_days: -3\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("negative half life should fail validation")
	}
}
