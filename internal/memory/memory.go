// Package memory defines the core data types shared by the ranking engine,
// the retention evaluator, and the store implementations.
package memory

import "time"

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ValidRoles are the accepted values at the ingest boundary.
var ValidRoles = map[Role]bool{
	RoleUser:      true,
	RoleAssistant: true,
	RoleSystem:    true,
}

// Status is a memory's lifecycle state. Transitions are monotonic:
// active -> archived -> deleted. Only the retention executor moves a
// memory between states.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// Memory is a stored message with its embedding, importance, and
// lifecycle state. Content and created_at are immutable after ingest.
type Memory struct {
	ID             string            `json:"id"`
	TenantID       string            `json:"tenant_id"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Role           Role              `json:"role"`
	Content        string            `json:"content"`
	Embedding      []float64         `json:"-"`
	Importance     float64           `json:"importance"`
	// ImportanceSet is false while scoring is still pending. A pending
	// memory ranks with importance 0 but is flagged in the breakdown so
	// callers can tell "unscored" apart from "low".
	ImportanceSet bool              `json:"importance_set"`
	Status        Status            `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ArchivedAt    *time.Time        `json:"archived_at,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Age returns the memory's age at the given instant.
func (m *Memory) Age(now time.Time) time.Duration {
	return now.Sub(m.CreatedAt)
}

// Policy is a tenant's retention rule set. Zero values disable the
// corresponding rule (a MaxAgeDays of 0 means "no age limit").
type Policy struct {
	TenantID            string    `json:"tenant_id"`
	MaxAgeDays          int       `json:"max_age_days"`
	ImportanceThreshold float64   `json:"importance_threshold"`
	MaxItems            int       `json:"max_items"`
	DeleteAfterDays     int       `json:"delete_after_days"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// AuditRecord is one append-only log entry per status transition.
// The store never updates or deletes rows in the audit log.
type AuditRecord struct {
	ID         int64     `json:"id"`
	MemoryID   string    `json:"memory_id"`
	TenantID   string    `json:"tenant_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ReasonCode string    `json:"reason_code"`
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"timestamp"`
}

// Transition describes one status change the executor wants to apply.
// From is the expected current status; the store applies the change as a
// compare-and-swap so concurrent runs cannot double-apply it.
type Transition struct {
	MemoryID   string
	TenantID   string
	From       Status
	To         Status
	ReasonCode string
	RunID      string
	At         time.Time
}

// Filter narrows the candidate set for a search.
type Filter struct {
	ConversationID string
	MinImportance  float64
	HasMinImp      bool
	// CandidateLimit bounds the batch a store hands to the ranking
	// engine. Zero means store default. The Postgres store uses the
	// query embedding to pre-select the nearest candidates.
	CandidateLimit int
	QueryEmbedding []float64
}

// Stats is a per-tenant count by lifecycle status.
type Stats struct {
	TenantID string `json:"tenant_id"`
	Active   int    `json:"active"`
	Archived int    `json:"archived"`
	Deleted  int    `json:"deleted"`
	Pending  int    `json:"pending_importance"`
}
