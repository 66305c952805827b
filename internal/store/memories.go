package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/memlayer/memlayer/internal/memory"
)

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	if len(buf) == 0 {
		return nil
	}
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

func encodeMetadata(md map[string]string) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(raw string) map[string]string {
	if raw == "" || raw == "{}" {
		return nil
	}
	var md map[string]string
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil
	}
	return md
}

const memoryColumns = `id, tenant_id, conversation_id, role, content, embedding,
	dimensions, importance, status, metadata, created_at, archived_at, updated_at`

// InsertMemory stores a new memory row. Status defaults to active and
// created_at to now when unset.
func (db *DB) InsertMemory(ctx context.Context, m *memory.Memory) error {
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

	var importance any
	if m.ImportanceSet {
		importance = m.Importance
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO memories (id, tenant_id, conversation_id, role, content, embedding,
			dimensions, importance, status, metadata, created_at, archived_at, updated_at)
		VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
	`, m.ID, m.TenantID, m.ConversationID, string(m.Role), m.Content,
		encodeEmbedding(m.Embedding), len(m.Embedding), importance,
		string(m.Status), md, m.CreatedAt.UnixMilli(), m.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// GetMemory returns a single memory scoped by tenant.
func (db *DB) GetMemory(ctx context.Context, tenantID, id string) (*memory.Memory, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+memoryColumns+` FROM memories WHERE tenant_id = ? AND id = ?
	`, tenantID, id)

	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("memory %s: %w", id, memory.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// ActiveMemories returns the active candidate set for a tenant.
func (db *DB) ActiveMemories(ctx context.Context, tenantID string, f memory.Filter) ([]memory.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE tenant_id = ? AND status = 'active'`
	args := []any{tenantID}

	if f.ConversationID != "" {
		query += ` AND conversation_id = ?`
		args = append(args, f.ConversationID)
	}
	if f.HasMinImp {
		query += ` AND importance IS NOT NULL AND importance >= ?`
		args = append(args, f.MinImportance)
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if f.CandidateLimit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.CandidateLimit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("active memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// RetentionSnapshot returns all active and archived memories for a
// tenant, embeddings omitted since the evaluator only reads lifecycle fields.
func (db *DB) RetentionSnapshot(ctx context.Context, tenantID string) ([]memory.Memory, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, conversation_id, role, content, NULL,
			dimensions, importance, status, metadata, created_at, archived_at, updated_at
		FROM memories
		WHERE tenant_id = ? AND status IN ('active', 'archived')
		ORDER BY created_at ASC, id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("retention snapshot: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// PendingImportance lists memories awaiting importance scoring.
func (db *DB) PendingImportance(ctx context.Context, tenantID string, limit int) ([]memory.Memory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE tenant_id = ? AND importance IS NULL AND status = 'active'
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("pending importance: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// SetImportance fills in a pending importance. A second write for the
// same memory is a no-op, never an override.
func (db *DB) SetImportance(ctx context.Context, tenantID, id string, score float64) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE memories SET importance = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND importance IS NULL
	`, score, time.Now().UnixMilli(), tenantID, id)
	if err != nil {
		return false, fmt.Errorf("set importance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set importance rows: %w", err)
	}
	return n > 0, nil
}

// Transition applies one status change and its audit record atomically.
// The UPDATE is a compare-and-swap keyed on the expected from-status, so
// two concurrent retention runs cannot double-apply a transition.
func (db *DB) Transition(ctx context.Context, t memory.Transition) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var archivedAt any
	if t.To == memory.StatusArchived {
		archivedAt = at.UnixMilli()
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE memories
		SET status = ?, archived_at = COALESCE(?, archived_at), updated_at = ?
		WHERE tenant_id = ? AND id = ? AND status = ?
	`, string(t.To), archivedAt, at.UnixMilli(), t.TenantID, t.MemoryID, string(t.From))
	if err != nil {
		return fmt.Errorf("transition update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows: %w", err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM memories WHERE tenant_id = ? AND id = ?",
			t.TenantID, t.MemoryID).Scan(&exists); err != nil {
			return fmt.Errorf("transition lookup: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("memory %s: %w", t.MemoryID, memory.ErrNotFound)
		}
		return fmt.Errorf("memory %s not in status %s: %w", t.MemoryID, t.From, memory.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (memory_id, tenant_id, from_status, to_status, reason_code, run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.MemoryID, t.TenantID, string(t.From), string(t.To), t.ReasonCode, t.RunID, at.UnixMilli()); err != nil {
		return fmt.Errorf("transition audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// TenantStats counts memories per lifecycle status.
func (db *DB) TenantStats(ctx context.Context, tenantID string) (*memory.Stats, error) {
	stats := &memory.Stats{TenantID: tenantID}
	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM memories WHERE tenant_id = ? GROUP BY status
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		switch memory.Status(status) {
		case memory.StatusActive:
			stats.Active = count
		case memory.StatusArchived:
			stats.Archived = count
		case memory.StatusDeleted:
			stats.Deleted = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memories WHERE tenant_id = ? AND importance IS NULL AND status = 'active'
	`, tenantID).Scan(&stats.Pending); err != nil {
		return nil, fmt.Errorf("pending count: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*memory.Memory, error) {
	var m memory.Memory
	var conversationID sql.NullString
	var blob []byte
	var dims int
	var importance sql.NullFloat64
	var role, status, md string
	var createdAt, updatedAt int64
	var archivedAt sql.NullInt64

	err := row.Scan(&m.ID, &m.TenantID, &conversationID, &role, &m.Content, &blob,
		&dims, &importance, &status, &md, &createdAt, &archivedAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	m.ConversationID = conversationID.String
	m.Role = memory.Role(role)
	m.Status = memory.Status(status)
	m.Embedding = decodeEmbedding(blob)
	m.Metadata = decodeMetadata(md)
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	m.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if archivedAt.Valid {
		at := time.UnixMilli(archivedAt.Int64).UTC()
		m.ArchivedAt = &at
	}
	if importance.Valid {
		m.Importance = importance.Float64
		m.ImportanceSet = true
	}
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]memory.Memory, error) {
	var memories []memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}
