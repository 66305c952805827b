package retention

import (
	"reflect"
	"testing"
	"time"

	"github.com/memlayer/memlayer/internal/memory"
)

var evalNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func snapMemory(id string, importance float64, ageDays int) memory.Memory {
	return memory.Memory{
		ID:            id,
		TenantID:      "t1",
		Role:          memory.RoleUser,
		Importance:    importance,
		ImportanceSet: true,
		Status:        memory.StatusActive,
		CreatedAt:     evalNow.Add(-time.Duration(ageDays) * 24 * time.Hour),
	}
}

func decisionFor(t *testing.T, decisions []Decision, id string) Decision {
	t.Helper()
	for _, d := range decisions {
		if d.MemoryID == id {
			return d
		}
	}
	t.Fatalf("no decision for %s", id)
	return Decision{}
}

func TestEvaluateLowImportanceAndMaxAge(t *testing.T) {
	pol := memory.Policy{TenantID: "t1", ImportanceThreshold: 0.1, MaxAgeDays: 30}
	snapshot := []memory.Memory{
		snapMemory("m1", 0.9, 0),
		snapMemory("m2", 0.4, 10),
		snapMemory("m3", 0.05, 40),
	}

	decisions := Evaluate(evalNow, pol, snapshot)
	if len(decisions) != 3 {
		t.Fatalf("got %d decisions, want 3", len(decisions))
	}

	if d := decisionFor(t, decisions, "m1"); d.Action != ActionKeep {
		t.Errorf("m1: got %s, want keep", d.Action)
	}
	if d := decisionFor(t, decisions, "m2"); d.Action != ActionKeep {
		t.Errorf("m2: got %s, want keep", d.Action)
	}
	// m3 trips both rules; low_importance has higher priority.
	d := decisionFor(t, decisions, "m3")
	if d.Action != ActionArchive || d.Reason != ReasonLowImportance {
		t.Errorf("m3: got %s/%s, want archive/low_importance", d.Action, d.Reason)
	}
}

func TestEvaluateMaxAgeOnly(t *testing.T) {
	pol := memory.Policy{TenantID: "t1", MaxAgeDays: 30}
	snapshot := []memory.Memory{
		snapMemory("m1", 0.9, 40),
		snapMemory("m2", 0.9, 10),
	}

	decisions := Evaluate(evalNow, pol, snapshot)
	if d := decisionFor(t, decisions, "m1"); d.Action != ActionArchive || d.Reason != ReasonMaxAgeExceeded {
		t.Errorf("m1: got %s/%s, want archive/max_age_exceeded", d.Action, d.Reason)
	}
	if d := decisionFor(t, decisions, "m2"); d.Action != ActionKeep {
		t.Errorf("m2: got %s, want keep", d.Action)
	}
}

func TestEvaluateQuota(t *testing.T) {
	pol := memory.Policy{TenantID: "t1", MaxItems: 2}
	snapshot := []memory.Memory{
		snapMemory("m1", 0.9, 3),
		snapMemory("m2", 0.5, 2),
		snapMemory("m3", 0.1, 1),
	}

	decisions := Evaluate(evalNow, pol, snapshot)
	if d := decisionFor(t, decisions, "m3"); d.Action != ActionArchive || d.Reason != ReasonQuotaExceeded {
		t.Errorf("m3: got %s/%s, want archive/quota_exceeded", d.Action, d.Reason)
	}
	for _, id := range []string{"m1", "m2"} {
		if d := decisionFor(t, decisions, id); d.Action != ActionKeep {
			t.Errorf("%s: got %s, want keep", id, d.Action)
		}
	}
}

func TestEvaluateQuotaKeepsEarlierReason(t *testing.T) {
	// m3 is both below the threshold and beyond the quota; the decision
	// carries the higher-priority reason only.
	pol := memory.Policy{TenantID: "t1", ImportanceThreshold: 0.2, MaxItems: 2}
	snapshot := []memory.Memory{
		snapMemory("m1", 0.9, 3),
		snapMemory("m2", 0.5, 2),
		snapMemory("m3", 0.1, 1),
	}

	decisions := Evaluate(evalNow, pol, snapshot)
	d := decisionFor(t, decisions, "m3")
	if d.Reason != ReasonLowImportance {
		t.Errorf("m3: got reason %s, want low_importance", d.Reason)
	}
	archived := 0
	for _, d := range decisions {
		if d.Action == ActionArchive {
			archived++
		}
	}
	if archived != 1 {
		t.Errorf("got %d archive decisions, want 1", archived)
	}
}

func TestEvaluateQuotaTieBreak(t *testing.T) {
	pol := memory.Policy{TenantID: "t1", MaxItems: 1}
	same := evalNow.Add(-24 * time.Hour)
	older := evalNow.Add(-48 * time.Hour)

	m1 := snapMemory("b", 0.5, 0)
	m1.CreatedAt = same
	m2 := snapMemory("a", 0.5, 0)
	m2.CreatedAt = same
	m3 := snapMemory("c", 0.5, 0)
	m3.CreatedAt = older

	decisions := Evaluate(evalNow, pol, []memory.Memory{m1, m2, m3})
	// Oldest goes first; among equal timestamps, lower id goes first.
	if d := decisionFor(t, decisions, "c"); d.Action != ActionArchive {
		t.Errorf("c: got %s, want archive", d.Action)
	}
	if d := decisionFor(t, decisions, "a"); d.Action != ActionArchive {
		t.Errorf("a: got %s, want archive", d.Action)
	}
	if d := decisionFor(t, decisions, "b"); d.Action != ActionKeep {
		t.Errorf("b: got %s, want keep", d.Action)
	}
}

func TestEvaluatePendingImportance(t *testing.T) {
	pol := memory.Policy{TenantID: "t1", ImportanceThreshold: 0.5, MaxItems: 1}
	pending := snapMemory("m1", 0, 0)
	pending.ImportanceSet = false
	scored := snapMemory("m2", 0.9, 1)

	decisions := Evaluate(evalNow, pol, []memory.Memory{pending, scored})
	// Pending is exempt from the threshold check but sorts as importance
	// zero under the quota, so it is the one the quota evicts.
	d := decisionFor(t, decisions, "m1")
	if d.Action != ActionArchive || d.Reason != ReasonQuotaExceeded {
		t.Errorf("m1: got %s/%s, want archive/quota_exceeded", d.Action, d.Reason)
	}
	if d := decisionFor(t, decisions, "m2"); d.Action != ActionKeep {
		t.Errorf("m2: got %s, want keep", d.Action)
	}
}

func TestEvaluateDeleteBoundaryExclusive(t *testing.T) {
	pol := memory.Policy{TenantID: "t1", DeleteAfterDays: 7}

	exactly := evalNow.Add(-7 * 24 * time.Hour)
	past := evalNow.Add(-8 * 24 * time.Hour)

	atBoundary := snapMemory("m1", 0.5, 30)
	atBoundary.Status = memory.StatusArchived
	atBoundary.ArchivedAt = &exactly

	beyond := snapMemory("m2", 0.5, 30)
	beyond.Status = memory.StatusArchived
	beyond.ArchivedAt = &past

	decisions := Evaluate(evalNow, pol, []memory.Memory{atBoundary, beyond})
	if d := decisionFor(t, decisions, "m1"); d.Action != ActionKeep {
		t.Errorf("m1 at exactly delete_after_days: got %s, want keep", d.Action)
	}
	d := decisionFor(t, decisions, "m2")
	if d.Action != ActionDelete || d.Reason != ReasonArchiveExpired {
		t.Errorf("m2: got %s/%s, want delete/archive_expired", d.Action, d.Reason)
	}
}

func TestEvaluateDisabledRules(t *testing.T) {
	// A zero-valued policy disables everything.
	pol := memory.Policy{TenantID: "t1"}
	old := snapMemory("m1", 0.01, 1000)
	archivedAt := evalNow.Add(-1000 * 24 * time.Hour)
	archived := snapMemory("m2", 0.01, 1000)
	archived.Status = memory.StatusArchived
	archived.ArchivedAt = &archivedAt

	for _, d := range Evaluate(evalNow, pol, []memory.Memory{old, archived}) {
		if d.Action != ActionKeep {
			t.Errorf("%s: got %s, want keep under empty policy", d.MemoryID, d.Action)
		}
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	pol := memory.Policy{TenantID: "t1", ImportanceThreshold: 0.3, MaxAgeDays: 20, MaxItems: 2, DeleteAfterDays: 5}
	archivedAt := evalNow.Add(-10 * 24 * time.Hour)
	archived := snapMemory("m5", 0.9, 60)
	archived.Status = memory.StatusArchived
	archived.ArchivedAt = &archivedAt

	snapshot := []memory.Memory{
		snapMemory("m1", 0.9, 1),
		snapMemory("m2", 0.2, 5),
		snapMemory("m3", 0.6, 25),
		snapMemory("m4", 0.7, 2),
		archived,
	}

	first := Evaluate(evalNow, pol, snapshot)
	second := Evaluate(evalNow, pol, snapshot)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("evaluation is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}
