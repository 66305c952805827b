package store

import (
	"context"
	"fmt"
	"time"

	"github.com/memlayer/memlayer/internal/memory"
)

// AuditTrail lists audit records for a tenant, newest first. The audit
// log has no update or delete path in this package; retention of the log
// itself is an external concern.
func (db *DB) AuditTrail(ctx context.Context, tenantID, runID string, limit int) ([]memory.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, memory_id, tenant_id, from_status, to_status, reason_code, run_id, created_at
		FROM audit_log WHERE tenant_id = ?`
	args := []any{tenantID}
	if runID != "" {
		query += ` AND run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit trail: %w", err)
	}
	defer rows.Close()

	var records []memory.AuditRecord
	for rows.Next() {
		var r memory.AuditRecord
		var from, to string
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.MemoryID, &r.TenantID, &from, &to,
			&r.ReasonCode, &r.RunID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.FromStatus = memory.Status(from)
		r.ToStatus = memory.Status(to)
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}
