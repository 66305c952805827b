package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/memlayer/memlayer/internal/memory"
)

// GetPolicy returns the tenant's retention policy. The executor reads
// the policy fresh at run time; nothing caches it across runs.
func (db *DB) GetPolicy(ctx context.Context, tenantID string) (*memory.Policy, error) {
	var p memory.Policy
	var createdAt, updatedAt int64
	err := db.QueryRowContext(ctx, `
		SELECT tenant_id, max_age_days, importance_threshold, max_items, delete_after_days, created_at, updated_at
		FROM retention_policies WHERE tenant_id = ?
	`, tenantID).Scan(&p.TenantID, &p.MaxAgeDays, &p.ImportanceThreshold,
		&p.MaxItems, &p.DeleteAfterDays, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("policy for tenant %s: %w", tenantID, memory.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &p, nil
}

// PutPolicy creates or replaces the tenant's retention policy.
func (db *DB) PutPolicy(ctx context.Context, p *memory.Policy) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO retention_policies (tenant_id, max_age_days, importance_threshold, max_items, delete_after_days, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			max_age_days = excluded.max_age_days,
			importance_threshold = excluded.importance_threshold,
			max_items = excluded.max_items,
			delete_after_days = excluded.delete_after_days,
			updated_at = excluded.updated_at
	`, p.TenantID, p.MaxAgeDays, p.ImportanceThreshold, p.MaxItems, p.DeleteAfterDays, now, now)
	if err != nil {
		return fmt.Errorf("put policy: %w", err)
	}
	return nil
}

// DeletePolicy removes the tenant's retention policy.
func (db *DB) DeletePolicy(ctx context.Context, tenantID string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM retention_policies WHERE tenant_id = ?", tenantID)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("policy for tenant %s: %w", tenantID, memory.ErrNotFound)
	}
	return nil
}
