package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/memlayer/memlayer/internal/config"
	"github.com/memlayer/memlayer/internal/embedding"
	"github.com/memlayer/memlayer/internal/memory"
	"github.com/memlayer/memlayer/internal/store"
)

func testEngine(t *testing.T) (*Engine, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 16

	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		t.Fatalf("new embedder: %v", err)
	}
	eng, err := New(db, emb, cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng, db
}

func TestIngestStoresAndScores(t *testing.T) {
	eng, db := testEngine(t)
	ctx := context.Background()

	m, err := eng.Ingest(ctx, IngestRequest{
		TenantID: "t1",
		Role:     memory.RoleUser,
		Content:  "the user prefers dark roast coffee",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if m.ID == "" {
		t.Error("ingest should assign an id")
	}
	if len(m.Embedding) != 16 {
		t.Errorf("embedding has %d dims, want 16", len(m.Embedding))
	}
	if !m.ImportanceSet {
		t.Error("rule scorer should score at ingest")
	}

	stored, err := db.GetMemory(ctx, "t1", m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Content != m.Content || stored.Status != memory.StatusActive {
		t.Errorf("stored memory mismatch: %+v", stored)
	}
}

func TestIngestImportanceOverride(t *testing.T) {
	eng, _ := testEngine(t)
	override := 0.95

	m, err := eng.Ingest(context.Background(), IngestRequest{
		TenantID:           "t1",
		Role:               memory.RoleUser,
		Content:            "remember this verbatim",
		ImportanceOverride: &override,
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !m.ImportanceSet || m.Importance != 0.95 {
		t.Errorf("importance = %v (set=%v), want 0.95 set", m.Importance, m.ImportanceSet)
	}
}

func TestIngestValidation(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  IngestRequest
	}{
		{"empty tenant", IngestRequest{Role: memory.RoleUser, Content: "x"}},
		{"empty content", IngestRequest{TenantID: "t1", Role: memory.RoleUser}},
		{"bad role", IngestRequest{TenantID: "t1", Role: "robot", Content: "x"}},
		{"bad embedding dims", IngestRequest{TenantID: "t1", Role: memory.RoleUser, Content: "x", Embedding: []float64{1, 2}}},
		{"override out of range", IngestRequest{TenantID: "t1", Role: memory.RoleUser, Content: "x", ImportanceOverride: ptr(1.5)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := eng.Ingest(ctx, tc.req); !memory.IsValidation(err) {
				t.Errorf("want validation error, got %v", err)
			}
		})
	}
}

func ptr(v float64) *float64 { return &v }

func TestSearchFindsRelevantMemory(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	contents := []string{
		"the user prefers dark roast coffee",
		"the deployment pipeline runs at midnight",
		"the cat's name is Maple",
	}
	for _, c := range contents {
		if _, err := eng.Ingest(ctx, IngestRequest{TenantID: "t1", Role: memory.RoleUser, Content: c}); err != nil {
			t.Fatalf("ingest %q: %v", c, err)
		}
	}

	// The mock embedder is deterministic, so searching with the exact
	// content embeds to the identical vector and similarity hits 1.0.
	results, err := eng.Search(ctx, SearchRequest{
		TenantID: "t1",
		Query:    "the cat's name is Maple",
		TopK:     3,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Memory.Content != "the cat's name is Maple" {
		t.Errorf("top result = %q", results[0].Memory.Content)
	}
	if results[0].Breakdown.Similarity < results[1].Breakdown.Similarity {
		t.Error("top result should have the highest similarity")
	}
}

func TestSearchUnknownTenantEmpty(t *testing.T) {
	eng, _ := testEngine(t)

	results, err := eng.Search(context.Background(), SearchRequest{
		TenantID: "nobody",
		Query:    "anything",
		TopK:     5,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("unknown tenant returned %d results, want 0", len(results))
	}
}

func TestSearchValidation(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	if _, err := eng.Search(ctx, SearchRequest{Query: "q", TopK: 5}); !memory.IsValidation(err) {
		t.Errorf("missing tenant: want validation error, got %v", err)
	}
	if _, err := eng.Search(ctx, SearchRequest{TenantID: "t1", Query: "q", TopK: 0}); !memory.IsValidation(err) {
		t.Errorf("top_k=0: want validation error, got %v", err)
	}
	if _, err := eng.Search(ctx, SearchRequest{TenantID: "t1", TopK: 5}); !memory.IsValidation(err) {
		t.Errorf("no query: want validation error, got %v", err)
	}
	if _, err := eng.Search(ctx, SearchRequest{TenantID: "t1", QueryEmbedding: []float64{1, 2}, TopK: 5}); !memory.IsValidation(err) {
		t.Errorf("wrong dims: want validation error, got %v", err)
	}
}

func TestSearchMinImportanceFilter(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	low := 0.1
	high := 0.9
	if _, err := eng.Ingest(ctx, IngestRequest{TenantID: "t1", Role: memory.RoleUser, Content: "trivia", ImportanceOverride: &low}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := eng.Ingest(ctx, IngestRequest{TenantID: "t1", Role: memory.RoleUser, Content: "critical fact", ImportanceOverride: &high}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	min := 0.5
	results, err := eng.Search(ctx, SearchRequest{
		TenantID:      "t1",
		Query:         "fact",
		TopK:          10,
		MinImportance: &min,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Memory.Content != "critical fact" {
		t.Errorf("min importance filter returned %+v", results)
	}
}

// failingScorer always errors, forcing the pending-importance path.
type failingScorer struct{}

func (failingScorer) Score(*memory.Memory, time.Time) (float64, error) {
	return 0, errors.New("model unavailable")
}

func TestScorePendingBackfills(t *testing.T) {
	eng, db := testEngine(t)
	ctx := context.Background()

	eng.RegisterScorer("t1", failingScorer{})
	m, err := eng.Ingest(ctx, IngestRequest{TenantID: "t1", Role: memory.RoleUser, Content: "scored later"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if m.ImportanceSet {
		t.Fatal("failing scorer should leave importance pending")
	}

	// Swap in a scorer that works and backfill.
	eng.RegisterScorer("t1", NewRuleScorer(config.Default().Scoring))
	scored, err := eng.ScorePending(ctx, "t1")
	if err != nil {
		t.Fatalf("score pending: %v", err)
	}
	if scored != 1 {
		t.Errorf("scored = %d, want 1", scored)
	}

	stored, err := db.GetMemory(ctx, "t1", m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.ImportanceSet {
		t.Error("importance should be set after backfill")
	}

	// Re-running finds nothing left to score.
	scored, err = eng.ScorePending(ctx, "t1")
	if err != nil {
		t.Fatalf("second score pending: %v", err)
	}
	if scored != 0 {
		t.Errorf("second run scored = %d, want 0", scored)
	}
}

func TestRegisteredScorerReplacesDefault(t *testing.T) {
	eng, _ := testEngine(t)
	ctx := context.Background()

	eng.RegisterScorer("t1", fixedScorer(0.42))

	m, err := eng.Ingest(ctx, IngestRequest{TenantID: "t1", Role: memory.RoleUser, Content: "custom scored"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if m.Importance != 0.42 {
		t.Errorf("importance = %v, want 0.42 from the registered scorer", m.Importance)
	}

	// Other tenants keep the default.
	other, err := eng.Ingest(ctx, IngestRequest{TenantID: "t2", Role: memory.RoleUser, Content: "custom scored"})
	if err != nil {
		t.Fatalf("ingest t2: %v", err)
	}
	if other.Importance == 0.42 {
		t.Error("unregistered tenant should not use t1's scorer")
	}
}

type fixedScorer float64

func (f fixedScorer) Score(*memory.Memory, time.Time) (float64, error) {
	return float64(f), nil
}
