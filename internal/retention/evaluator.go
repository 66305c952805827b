// Package retention implements the policy evaluator and the executor
// that retires memories over time. The evaluator is a pure function over
// a store snapshot, which makes dry-run support a construction property
// rather than a code path.
package retention

import (
	"sort"
	"time"

	"github.com/memlayer/memlayer/internal/memory"
)

// Action is the evaluator's verdict for one memory.
type Action string

const (
	ActionKeep    Action = "keep"
	ActionArchive Action = "archive"
	ActionDelete  Action = "delete"
)

// Reason codes attached to archive/delete decisions. Each decision
// carries exactly one.
const (
	ReasonLowImportance  = "low_importance"
	ReasonMaxAgeExceeded = "max_age_exceeded"
	ReasonQuotaExceeded  = "quota_exceeded"
	ReasonArchiveExpired = "archive_expired"
)

// Decision pairs a memory with its action and reason.
type Decision struct {
	MemoryID string `json:"memory_id"`
	Action   Action `json:"action"`
	Reason   string `json:"reason_code,omitempty"`
}

// archiveRule is one ordered check against an active memory. The order
// of the rules list IS the reason-code priority: the first rule that
// fires supplies the single reason code. Encoding the priority as this
// explicit sequence (rather than independent flags combined afterwards)
// preserves the one-reason-per-decision invariant if rules are ever
// added.
type archiveRule struct {
	reason string
	match  func(pol memory.Policy, m *memory.Memory, now time.Time) bool
}

var archiveRules = []archiveRule{
	{
		reason: ReasonLowImportance,
		match: func(pol memory.Policy, m *memory.Memory, _ time.Time) bool {
			// A pending importance cannot be judged against the
			// threshold; the memory is exempt until scored.
			return pol.ImportanceThreshold > 0 && m.ImportanceSet && m.Importance < pol.ImportanceThreshold
		},
	},
	{
		reason: ReasonMaxAgeExceeded,
		match: func(pol memory.Policy, m *memory.Memory, now time.Time) bool {
			if pol.MaxAgeDays <= 0 {
				return false
			}
			return ageDays(m.CreatedAt, now) > float64(pol.MaxAgeDays)
		},
	},
}

// Evaluate classifies every memory in the snapshot as keep, archive, or
// delete under the tenant's policy. It never mutates state; running it
// twice over the same snapshot yields the same decision set.
//
// Archive rules apply to active memories only, delete rules to archived
// memories only. The delete boundary is exclusive: an archived memory
// becomes delete-eligible strictly after delete_after_days have passed.
func Evaluate(now time.Time, pol memory.Policy, snapshot []memory.Memory) []Decision {
	byID := make(map[string]Decision, len(snapshot))

	var active []*memory.Memory
	for i := range snapshot {
		m := &snapshot[i]
		switch m.Status {
		case memory.StatusActive:
			active = append(active, m)
			for _, rule := range archiveRules {
				if rule.match(pol, m, now) {
					byID[m.ID] = Decision{MemoryID: m.ID, Action: ActionArchive, Reason: rule.reason}
					break
				}
			}
		case memory.StatusArchived:
			if pol.DeleteAfterDays > 0 && m.ArchivedAt != nil &&
				ageDays(*m.ArchivedAt, now) > float64(pol.DeleteAfterDays) {
				byID[m.ID] = Decision{MemoryID: m.ID, Action: ActionDelete, Reason: ReasonArchiveExpired}
			}
		}
	}

	// Quota check last: it has the lowest reason priority, so memories
	// already marked keep their earlier reason. The ranking runs over
	// the full active snapshot so concurrent rule changes cannot shift
	// the selection.
	if pol.MaxItems > 0 && len(active) > pol.MaxItems {
		for _, m := range quotaExcess(active, pol.MaxItems) {
			if _, marked := byID[m.ID]; !marked {
				byID[m.ID] = Decision{MemoryID: m.ID, Action: ActionArchive, Reason: ReasonQuotaExceeded}
			}
		}
	}

	// Emit in snapshot order so the decision list is reproducible.
	decisions := make([]Decision, 0, len(snapshot))
	for i := range snapshot {
		m := &snapshot[i]
		if d, ok := byID[m.ID]; ok {
			decisions = append(decisions, d)
			continue
		}
		decisions = append(decisions, Decision{MemoryID: m.ID, Action: ActionKeep})
	}
	return decisions
}

// quotaExcess returns the active memories beyond the max_items budget,
// least valuable first: ordered by importance ascending (pending sorts
// as zero), then created_at ascending, ties broken by id ascending.
func quotaExcess(active []*memory.Memory, maxItems int) []*memory.Memory {
	ranked := make([]*memory.Memory, len(active))
	copy(ranked, active)

	sort.Slice(ranked, func(i, j int) bool {
		ii, ij := effectiveImportance(ranked[i]), effectiveImportance(ranked[j])
		if ii != ij {
			return ii < ij
		}
		if !ranked[i].CreatedAt.Equal(ranked[j].CreatedAt) {
			return ranked[i].CreatedAt.Before(ranked[j].CreatedAt)
		}
		return ranked[i].ID < ranked[j].ID
	})

	return ranked[:len(ranked)-maxItems]
}

func effectiveImportance(m *memory.Memory) float64 {
	if !m.ImportanceSet {
		return 0
	}
	return m.Importance
}

func ageDays(since, now time.Time) float64 {
	return now.Sub(since).Hours() / 24
}
