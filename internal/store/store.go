// Package store provides the durable memory store: the ground truth the
// ranking engine reads and the retention executor mutates.
//
// Two implementations exist: SQLite (primary, single binary, no external
// services) and Postgres with pgvector (for deployments that want
// candidate pre-selection in SQL). Both keep the same contract:
//   - every query and mutation is tenant-scoped
//   - status transitions are compare-and-swap on the expected current
//     status, committed atomically with their audit record
//   - the audit log is append-only
package store

import (
	"context"

	"github.com/memlayer/memlayer/internal/memory"
)

// Store defines the memory storage contract.
type Store interface {
	// InsertMemory stores a new memory. The caller assigns the ID.
	InsertMemory(ctx context.Context, m *memory.Memory) error

	// GetMemory returns a memory by tenant and id, or memory.ErrNotFound.
	GetMemory(ctx context.Context, tenantID, id string) (*memory.Memory, error)

	// ActiveMemories returns active memories for a tenant with their
	// embeddings, narrowed by the filter. This is the ranking engine's
	// candidate read path.
	ActiveMemories(ctx context.Context, tenantID string, f memory.Filter) ([]memory.Memory, error)

	// RetentionSnapshot returns all active and archived memories for a
	// tenant, without embeddings. The evaluator works over this snapshot.
	RetentionSnapshot(ctx context.Context, tenantID string) ([]memory.Memory, error)

	// PendingImportance returns up to limit memories whose importance has
	// not been scored yet.
	PendingImportance(ctx context.Context, tenantID string, limit int) ([]memory.Memory, error)

	// SetImportance records a computed importance exactly once. It
	// returns false without writing when importance is already set, so a
	// crashed-and-retried scoring job stays idempotent.
	SetImportance(ctx context.Context, tenantID, id string, score float64) (bool, error)

	// Transition applies one status change plus its audit record in a
	// single transaction. It returns memory.ErrConflict when the row is
	// not in the expected from-status, memory.ErrNotFound when the row
	// does not exist.
	Transition(ctx context.Context, t memory.Transition) error

	// GetPolicy returns the tenant's retention policy, or memory.ErrNotFound.
	GetPolicy(ctx context.Context, tenantID string) (*memory.Policy, error)

	// PutPolicy creates or replaces the tenant's retention policy.
	PutPolicy(ctx context.Context, p *memory.Policy) error

	// DeletePolicy removes the tenant's retention policy.
	DeletePolicy(ctx context.Context, tenantID string) error

	// AuditTrail lists audit records for a tenant, newest first,
	// optionally narrowed to a single run.
	AuditTrail(ctx context.Context, tenantID, runID string, limit int) ([]memory.AuditRecord, error)

	// TenantStats counts memories by lifecycle status.
	TenantStats(ctx context.Context, tenantID string) (*memory.Stats, error)

	Ping(ctx context.Context) error
	Close() error
}
