package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/memlayer/memlayer/internal/memory"
)

// Postgres is the pgvector-backed Store. It keeps the same contract as
// the SQLite store but lets the database pre-select the nearest
// candidates with the <=> distance operator, bounding the batch handed
// to the ranking engine.
type Postgres struct {
	pool *pgxpool.Pool
	dims int
}

var _ Store = (*Postgres)(nil)

// NewPostgres connects to the given database URL and ensures the schema
// exists. dims is the process-wide embedding dimension.
func NewPostgres(ctx context.Context, databaseURL string, dims int) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &Postgres{pool: pool, dims: dims}
	if err := p.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id              TEXT PRIMARY KEY,
			tenant_id       TEXT NOT NULL,
			conversation_id TEXT,
			role            TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
			content         TEXT NOT NULL,
			embedding       vector(%d),
			dimensions      INTEGER NOT NULL DEFAULT 0,
			importance      DOUBLE PRECISION,
			status          TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived', 'deleted')),
			metadata        JSONB NOT NULL DEFAULT '{}',
			created_at      TIMESTAMPTZ NOT NULL,
			archived_at     TIMESTAMPTZ,
			updated_at      TIMESTAMPTZ NOT NULL
		)`, p.dims),
		`CREATE INDEX IF NOT EXISTS idx_memories_tenant_active
			ON memories(tenant_id, created_at) WHERE status = 'active'`,
		`CREATE INDEX IF NOT EXISTS idx_memories_tenant_archived
			ON memories(tenant_id, archived_at) WHERE status = 'archived'`,
		`CREATE TABLE IF NOT EXISTS retention_policies (
			tenant_id            TEXT PRIMARY KEY,
			max_age_days         INTEGER NOT NULL DEFAULT 0,
			importance_threshold DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_items            INTEGER NOT NULL DEFAULT 0,
			delete_after_days    INTEGER NOT NULL DEFAULT 0,
			created_at           TIMESTAMPTZ NOT NULL,
			updated_at           TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id          BIGSERIAL PRIMARY KEY,
			memory_id   TEXT NOT NULL,
			tenant_id   TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status   TEXT NOT NULL,
			reason_code TEXT NOT NULL,
			run_id      TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_tenant ON audit_log(tenant_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func toVector(vec []float64) *pgvector.Vector {
	if len(vec) == 0 {
		return nil
	}
	f32 := make([]float32, len(vec))
	for i, v := range vec {
		f32[i] = float32(v)
	}
	v := pgvector.NewVector(f32)
	return &v
}

func fromVector(v *pgvector.Vector) []float64 {
	if v == nil {
		return nil
	}
	f32 := v.Slice()
	if len(f32) == 0 {
		return nil
	}
	vec := make([]float64, len(f32))
	for i, f := range f32 {
		vec[i] = float64(f)
	}
	return vec
}

// InsertMemory stores a new memory row.
func (p *Postgres) InsertMemory(ctx context.Context, m *memory.Memory) error {
	if m.Status == "" {
		m.Status = memory.StatusActive
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.UpdatedAt = m.CreatedAt

	md, err := encodeMetadata(m.Metadata)
	if err != nil {
		return err
	}
	var importance *float64
	if m.ImportanceSet {
		importance = &m.Importance
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO memories (id, tenant_id, conversation_id, role, content, embedding,
			dimensions, importance, status, metadata, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, m.ID, m.TenantID, m.ConversationID, string(m.Role), m.Content,
		toVector(m.Embedding), len(m.Embedding), importance, string(m.Status),
		md, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

const pgMemoryColumns = `id, tenant_id, COALESCE(conversation_id, ''), role, content, embedding,
	dimensions, importance, status, metadata::text, created_at, archived_at, updated_at`

func (p *Postgres) scanMemory(row pgx.Row) (*memory.Memory, error) {
	var m memory.Memory
	var vec *pgvector.Vector
	var dims int
	var importance *float64
	var role, status, md string
	var archivedAt *time.Time

	err := row.Scan(&m.ID, &m.TenantID, &m.ConversationID, &role, &m.Content, &vec,
		&dims, &importance, &status, &md, &m.CreatedAt, &archivedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Role = memory.Role(role)
	m.Status = memory.Status(status)
	m.Embedding = fromVector(vec)
	m.Metadata = decodeMetadata(md)
	m.ArchivedAt = archivedAt
	if importance != nil {
		m.Importance = *importance
		m.ImportanceSet = true
	}
	return &m, nil
}

func (p *Postgres) collectMemories(rows pgx.Rows) ([]memory.Memory, error) {
	var memories []memory.Memory
	for rows.Next() {
		m, err := p.scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}

// GetMemory returns a single memory scoped by tenant.
func (p *Postgres) GetMemory(ctx context.Context, tenantID, id string) (*memory.Memory, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+pgMemoryColumns+` FROM memories WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	m, err := p.scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("memory %s: %w", id, memory.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// ActiveMemories returns active candidates. With a query embedding in
// the filter, pgvector orders by distance so the batch stays bounded.
func (p *Postgres) ActiveMemories(ctx context.Context, tenantID string, f memory.Filter) ([]memory.Memory, error) {
	query := `SELECT ` + pgMemoryColumns + ` FROM memories WHERE tenant_id = $1 AND status = 'active'`
	args := []any{tenantID}

	if f.ConversationID != "" {
		args = append(args, f.ConversationID)
		query += fmt.Sprintf(` AND conversation_id = $%d`, len(args))
	}
	if f.HasMinImp {
		args = append(args, f.MinImportance)
		query += fmt.Sprintf(` AND importance IS NOT NULL AND importance >= $%d`, len(args))
	}
	if len(f.QueryEmbedding) > 0 && f.CandidateLimit > 0 {
		args = append(args, toVector(f.QueryEmbedding))
		query += fmt.Sprintf(` AND embedding IS NOT NULL ORDER BY embedding <=> $%d`, len(args))
		args = append(args, f.CandidateLimit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	} else {
		query += ` ORDER BY created_at DESC, id ASC`
		if f.CandidateLimit > 0 {
			args = append(args, f.CandidateLimit)
			query += fmt.Sprintf(` LIMIT $%d`, len(args))
		}
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("active memories: %w", err)
	}
	defer rows.Close()

	return p.collectMemories(rows)
}

// RetentionSnapshot returns active and archived memories without embeddings.
func (p *Postgres) RetentionSnapshot(ctx context.Context, tenantID string) ([]memory.Memory, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, tenant_id, COALESCE(conversation_id, ''), role, content, NULL::vector,
			dimensions, importance, status, metadata::text, created_at, archived_at, updated_at
		FROM memories
		WHERE tenant_id = $1 AND status IN ('active', 'archived')
		ORDER BY created_at ASC, id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("retention snapshot: %w", err)
	}
	defer rows.Close()

	return p.collectMemories(rows)
}

// PendingImportance lists memories awaiting importance scoring.
func (p *Postgres) PendingImportance(ctx context.Context, tenantID string, limit int) ([]memory.Memory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT `+pgMemoryColumns+` FROM memories
		WHERE tenant_id = $1 AND importance IS NULL AND status = 'active'
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("pending importance: %w", err)
	}
	defer rows.Close()

	return p.collectMemories(rows)
}

// SetImportance fills in a pending importance exactly once.
func (p *Postgres) SetImportance(ctx context.Context, tenantID, id string, score float64) (bool, error) {
	ct, err := p.pool.Exec(ctx, `
		UPDATE memories SET importance = $1, updated_at = $2
		WHERE tenant_id = $3 AND id = $4 AND importance IS NULL
	`, score, time.Now().UTC(), tenantID, id)
	if err != nil {
		return false, fmt.Errorf("set importance: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// Transition applies one status change and its audit record atomically.
func (p *Postgres) Transition(ctx context.Context, t memory.Transition) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var archivedAt *time.Time
	if t.To == memory.StatusArchived {
		archivedAt = &at
	}

	ct, err := tx.Exec(ctx, `
		UPDATE memories
		SET status = $1, archived_at = COALESCE($2, archived_at), updated_at = $3
		WHERE tenant_id = $4 AND id = $5 AND status = $6
	`, string(t.To), archivedAt, at, t.TenantID, t.MemoryID, string(t.From))
	if err != nil {
		return fmt.Errorf("transition update: %w", err)
	}
	if ct.RowsAffected() == 0 {
		var exists int
		if err := tx.QueryRow(ctx,
			"SELECT COUNT(*) FROM memories WHERE tenant_id = $1 AND id = $2",
			t.TenantID, t.MemoryID).Scan(&exists); err != nil {
			return fmt.Errorf("transition lookup: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("memory %s: %w", t.MemoryID, memory.ErrNotFound)
		}
		return fmt.Errorf("memory %s not in status %s: %w", t.MemoryID, t.From, memory.ErrConflict)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO audit_log (memory_id, tenant_id, from_status, to_status, reason_code, run_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.MemoryID, t.TenantID, string(t.From), string(t.To), t.ReasonCode, t.RunID, at); err != nil {
		return fmt.Errorf("transition audit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// GetPolicy returns the tenant's retention policy.
func (p *Postgres) GetPolicy(ctx context.Context, tenantID string) (*memory.Policy, error) {
	var pol memory.Policy
	err := p.pool.QueryRow(ctx, `
		SELECT tenant_id, max_age_days, importance_threshold, max_items, delete_after_days, created_at, updated_at
		FROM retention_policies WHERE tenant_id = $1
	`, tenantID).Scan(&pol.TenantID, &pol.MaxAgeDays, &pol.ImportanceThreshold,
		&pol.MaxItems, &pol.DeleteAfterDays, &pol.CreatedAt, &pol.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("policy for tenant %s: %w", tenantID, memory.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return &pol, nil
}

// PutPolicy creates or replaces the tenant's retention policy.
func (p *Postgres) PutPolicy(ctx context.Context, pol *memory.Policy) error {
	now := time.Now().UTC()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO retention_policies (tenant_id, max_age_days, importance_threshold, max_items, delete_after_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (tenant_id) DO UPDATE SET
			max_age_days = EXCLUDED.max_age_days,
			importance_threshold = EXCLUDED.importance_threshold,
			max_items = EXCLUDED.max_items,
			delete_after_days = EXCLUDED.delete_after_days,
			updated_at = EXCLUDED.updated_at
	`, pol.TenantID, pol.MaxAgeDays, pol.ImportanceThreshold, pol.MaxItems, pol.DeleteAfterDays, now)
	if err != nil {
		return fmt.Errorf("put policy: %w", err)
	}
	return nil
}

// DeletePolicy removes the tenant's retention policy.
func (p *Postgres) DeletePolicy(ctx context.Context, tenantID string) error {
	ct, err := p.pool.Exec(ctx, "DELETE FROM retention_policies WHERE tenant_id = $1", tenantID)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("policy for tenant %s: %w", tenantID, memory.ErrNotFound)
	}
	return nil
}

// AuditTrail lists audit records for a tenant, newest first.
func (p *Postgres) AuditTrail(ctx context.Context, tenantID, runID string, limit int) ([]memory.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, memory_id, tenant_id, from_status, to_status, reason_code, run_id, created_at
		FROM audit_log WHERE tenant_id = $1`
	args := []any{tenantID}
	if runID != "" {
		args = append(args, runID)
		query += fmt.Sprintf(` AND run_id = $%d`, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit trail: %w", err)
	}
	defer rows.Close()

	var records []memory.AuditRecord
	for rows.Next() {
		var r memory.AuditRecord
		var from, to string
		if err := rows.Scan(&r.ID, &r.MemoryID, &r.TenantID, &from, &to,
			&r.ReasonCode, &r.RunID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.FromStatus = memory.Status(from)
		r.ToStatus = memory.Status(to)
		records = append(records, r)
	}
	return records, rows.Err()
}

// TenantStats counts memories per lifecycle status.
func (p *Postgres) TenantStats(ctx context.Context, tenantID string) (*memory.Stats, error) {
	stats := &memory.Stats{TenantID: tenantID}
	err := p.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'archived'),
			COUNT(*) FILTER (WHERE status = 'deleted'),
			COUNT(*) FILTER (WHERE status = 'active' AND importance IS NULL)
		FROM memories WHERE tenant_id = $1
	`, tenantID).Scan(&stats.Active, &stats.Archived, &stats.Deleted, &stats.Pending)
	if err != nil {
		return nil, fmt.Errorf("tenant stats: %w", err)
	}
	return stats, nil
}

// Ping verifies the pool.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
