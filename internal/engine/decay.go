package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/memlayer/memlayer/internal/config"
)

// DecayVersionExpV1 is the only decay formula currently implemented:
// exp(-age_seconds / half_life_seconds), clamped to [0, 1].
//
// The version string is part of the scoring configuration so that a
// ranking computed today can be reproduced later even if a new formula
// ships; the formula is never silently swappable.
const DecayVersionExpV1 = "exp-v1"

// DecayConfig pins the decay half-life and formula version.
type DecayConfig struct {
	HalfLife time.Duration
	Version  string
}

// DecayConfigFrom builds a DecayConfig from the scoring config.
func DecayConfigFrom(cfg config.ScoringConfig) (DecayConfig, error) {
	version := cfg.DecayVersion
	if version == "" {
		version = DecayVersionExpV1
	}
	if version != DecayVersionExpV1 {
		return DecayConfig{}, fmt.Errorf("unknown decay version %q", version)
	}
	if cfg.DecayHalfLifeDays <= 0 {
		return DecayConfig{}, fmt.Errorf("decay half-life must be positive, got %v", cfg.DecayHalfLifeDays)
	}
	return DecayConfig{
		HalfLife: time.Duration(cfg.DecayHalfLifeDays * 24 * float64(time.Hour)),
		Version:  version,
	}, nil
}

// Decay maps a memory's age to [0, 1], monotonically non-increasing in
// age. It is a total function on non-negative input; negative age is a
// programming error and panics.
func Decay(age time.Duration, cfg DecayConfig) float64 {
	if age < 0 {
		panic(fmt.Sprintf("engine: negative age %v passed to Decay", age))
	}
	if cfg.HalfLife <= 0 {
		panic(fmt.Sprintf("engine: non-positive half-life %v in DecayConfig", cfg.HalfLife))
	}

	d := math.Exp(-age.Seconds() / cfg.HalfLife.Seconds())
	return clamp01(d)
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
