// Package config holds all memlayer configuration.
//
// Configuration is an explicit object passed into each component at
// construction, never ambient global state, so multiple tenants and
// scoring setups can coexist in one process for testing.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all memlayer configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	// Driver selects the store backend: "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// Path is the SQLite database file (sqlite driver only).
	Path string `yaml:"path"`
	// URL is the postgres connection string (postgres driver only).
	URL string `yaml:"url"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "mock", "ollama"
	Dimensions int    `yaml:"dimensions"`
	OllamaURL  string `yaml:"ollama_url"`
	Model      string `yaml:"model"`
	// CacheEntries bounds the text->vector memoization cache.
	CacheEntries int64 `yaml:"cache_entries"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ScoringConfig controls the hybrid ranking and importance scoring.
type ScoringConfig struct {
	Weights           RankWeights `yaml:"weights"`
	DecayHalfLifeDays float64     `yaml:"decay_half_life_days"`
	// DecayVersion pins the decay formula; determinism requires the
	// formula version to be part of the scoring configuration.
	DecayVersion string             `yaml:"decay_version"`
	Importance   ImportanceWeights  `yaml:"importance"`
	RoleWeights  map[string]float64 `yaml:"role_weights"`
	// ImportantTags are metadata keys whose presence boosts the
	// rule-based importance score.
	ImportantTags []string `yaml:"important_tags"`
}

// RankWeights are the hybrid ranking weights. They are normalized to sum
// to 1.0 before use; callers may supply any non-negative values.
type RankWeights struct {
	Similarity float64 `yaml:"similarity" json:"similarity"`
	Importance float64 `yaml:"importance" json:"importance"`
	Decay      float64 `yaml:"decay" json:"decay"`
}

// Normalized returns the weights scaled to sum to 1.0. All-zero weights
// fall back to the defaults rather than dividing by zero.
func (w RankWeights) Normalized() RankWeights {
	total := w.Similarity + w.Importance + w.Decay
	if total <= 0 {
		return Default().Scoring.Weights
	}
	return RankWeights{
		Similarity: w.Similarity / total,
		Importance: w.Importance / total,
		Decay:      w.Decay / total,
	}
}

// IsZero reports whether no weight was supplied.
func (w RankWeights) IsZero() bool {
	return w.Similarity == 0 && w.Importance == 0 && w.Decay == 0
}

// ImportanceWeights blend the rule-based scorer components.
type ImportanceWeights struct {
	Recency  float64 `yaml:"recency"`
	Role     float64 `yaml:"role"`
	Explicit float64 `yaml:"explicit"`
}

// Normalized returns the weights scaled to sum to 1.0.
func (w ImportanceWeights) Normalized() ImportanceWeights {
	total := w.Recency + w.Role + w.Explicit
	if total <= 0 {
		return Default().Scoring.Importance
	}
	return ImportanceWeights{
		Recency:  w.Recency / total,
		Role:     w.Role / total,
		Explicit: w.Explicit / total,
	}
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38080,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "", // resolved at runtime via store.DefaultDBPath()
		},
		Embedding: EmbeddingConfig{
			Provider:     "mock",
			Dimensions:   256,
			OllamaURL:    "http://localhost:11434",
			Model:        "nomic-embed-text",
			CacheEntries: 4096,
		},
		Scoring: ScoringConfig{
			Weights: RankWeights{
				Similarity: 0.6,
				Importance: 0.25,
				Decay:      0.15,
			},
			DecayHalfLifeDays: 30,
			DecayVersion:      "exp-v1",
			Importance: ImportanceWeights{
				Recency:  0.4,
				Role:     0.2,
				Explicit: 0.4,
			},
			RoleWeights: map[string]float64{
				"system":    0.9,
				"user":      0.7,
				"assistant": 0.5,
			},
			ImportantTags: []string{"pinned", "important"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file, layering it over the defaults.
// A missing file returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Scoring.DecayHalfLifeDays <= 0 {
		return fmt.Errorf("scoring.decay_half_life_days must be positive, got %v", c.Scoring.DecayHalfLifeDays)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
