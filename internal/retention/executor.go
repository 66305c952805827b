package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/memlayer/memlayer/internal/memory"
	"github.com/memlayer/memlayer/internal/retry"
	"github.com/memlayer/memlayer/internal/store"
)

// ActionSet selects which decision kinds a run may apply.
type ActionSet struct {
	Archive bool `json:"archive"`
	Delete  bool `json:"delete"`
}

// RunError records one per-memory failure inside a run.
type RunError struct {
	MemoryID string `json:"memory_id"`
	Message  string `json:"message"`
}

// RunResult summarizes one retention run.
type RunResult struct {
	RunID         string        `json:"run_id"`
	TenantID      string        `json:"tenant_id"`
	DryRun        bool          `json:"dry_run"`
	Archived      int           `json:"archived"`
	Deleted       int           `json:"deleted"`
	AffectedCount int           `json:"affected_count"`
	Errors        []RunError    `json:"errors"`
	Duration      time.Duration `json:"duration"`
	// Decisions carries the full evaluation on dry runs so callers can
	// preview exactly what a real run would do.
	Decisions []Decision `json:"decisions,omitempty"`
}

// Executor applies retention decisions against the store. The ranking
// engine never mutates status; every transition in the system funnels
// through here.
type Executor struct {
	store store.Store
	guard *tenantGuard
	retry retry.Config
	log   *slog.Logger
}

// NewExecutor creates an Executor over the given store.
func NewExecutor(st store.Store) *Executor {
	cfg := retry.DefaultConfig
	cfg.ShouldRetry = func(err error) bool {
		// Validation failures and missing rows won't heal on retry.
		return !memory.IsValidation(err) && !errors.Is(err, memory.ErrNotFound)
	}
	return &Executor{
		store: st,
		guard: newTenantGuard(),
		retry: cfg,
		log:   slog.Default().With("component", "retention"),
	}
}

// Run evaluates the tenant's policy and applies each non-keep decision
// as an atomic transition plus one audit record. Per-memory failures are
// collected and do not abort the batch; a run that cannot start (no
// policy, busy tenant) is a single top-level error.
//
// Cancellation is cooperative: the run checks ctx between transitions,
// never mid-transition, so a cancelled run leaves the store valid and
// auditable.
func (x *Executor) Run(ctx context.Context, tenantID string, actions ActionSet, dryRun bool) (*RunResult, error) {
	if tenantID == "" {
		return nil, memory.Validatef("tenant_id", "must not be empty")
	}
	if !actions.Archive && !actions.Delete {
		return nil, memory.Validatef("actions", "at least one of archive, delete is required")
	}

	if !x.guard.tryAcquire(tenantID) {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, memory.ErrRetentionBusy)
	}
	defer x.guard.release(tenantID)

	started := time.Now()
	result := &RunResult{
		RunID:    uuid.NewString(),
		TenantID: tenantID,
		DryRun:   dryRun,
	}

	// The policy is read fresh every run, never cached across runs.
	policy, err := x.store.GetPolicy(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}

	snapshot, err := x.store.RetentionSnapshot(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	decisions := Evaluate(started.UTC(), *policy, snapshot)

	if dryRun {
		for _, d := range decisions {
			if applies(d, actions) {
				result.AffectedCount++
			}
		}
		result.Decisions = decisions
		result.Duration = time.Since(started)
		return result, nil
	}

	for _, d := range decisions {
		if !applies(d, actions) {
			continue
		}
		// Cooperative cancellation point, between transitions only.
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(started)
			return result, err
		}

		t := transitionFor(d, tenantID, result.RunID)
		err := retry.Do(ctx, x.retry, func() error {
			return x.store.Transition(ctx, t)
		})
		if err != nil {
			result.Errors = append(result.Errors, RunError{MemoryID: d.MemoryID, Message: err.Error()})
			continue
		}

		result.AffectedCount++
		switch d.Action {
		case ActionArchive:
			result.Archived++
		case ActionDelete:
			result.Deleted++
		}
	}

	result.Duration = time.Since(started)
	x.log.Info("retention run complete",
		"tenant", tenantID, "run_id", result.RunID,
		"archived", result.Archived, "deleted", result.Deleted,
		"errors", len(result.Errors), "duration", result.Duration)
	return result, nil
}

func applies(d Decision, actions ActionSet) bool {
	switch d.Action {
	case ActionArchive:
		return actions.Archive
	case ActionDelete:
		return actions.Delete
	default:
		return false
	}
}

func transitionFor(d Decision, tenantID, runID string) memory.Transition {
	t := memory.Transition{
		MemoryID:   d.MemoryID,
		TenantID:   tenantID,
		ReasonCode: d.Reason,
		RunID:      runID,
	}
	if d.Action == ActionArchive {
		t.From = memory.StatusActive
		t.To = memory.StatusArchived
	} else {
		t.From = memory.StatusArchived
		t.To = memory.StatusDeleted
	}
	return t
}
