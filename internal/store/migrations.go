package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: tenant-scoped message memories with embeddings",
		SQL: `
CREATE TABLE memories (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    conversation_id TEXT,
    role            TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    content         TEXT NOT NULL,

    embedding       BLOB,
    dimensions      INTEGER NOT NULL DEFAULT 0,

    -- NULL importance means scoring is still pending
    importance      REAL,

    status          TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived', 'deleted')),
    metadata        TEXT NOT NULL DEFAULT '{}',

    created_at      INTEGER NOT NULL,
    archived_at     INTEGER,
    updated_at      INTEGER NOT NULL
);

-- Partial index keeps active-set scans fast regardless of how much
-- archived history a tenant accumulates.
CREATE INDEX idx_memories_tenant_active
    ON memories(tenant_id, created_at) WHERE status = 'active';
CREATE INDEX idx_memories_tenant_archived
    ON memories(tenant_id, archived_at) WHERE status = 'archived';
CREATE INDEX idx_memories_conversation ON memories(conversation_id);
`,
	},
	{
		Version:     2,
		Description: "retention_policies: per-tenant lifecycle rules",
		SQL: `
CREATE TABLE retention_policies (
    tenant_id            TEXT PRIMARY KEY,
    max_age_days         INTEGER NOT NULL DEFAULT 0,
    importance_threshold REAL NOT NULL DEFAULT 0,
    max_items            INTEGER NOT NULL DEFAULT 0,
    delete_after_days    INTEGER NOT NULL DEFAULT 0,
    created_at           INTEGER NOT NULL,
    updated_at           INTEGER NOT NULL
);
`,
	},
	{
		Version:     3,
		Description: "audit_log: append-only record of status transitions",
		SQL: `
CREATE TABLE audit_log (
    id          INTEGER PRIMARY KEY,
    memory_id   TEXT NOT NULL,
    tenant_id   TEXT NOT NULL,
    from_status TEXT NOT NULL,
    to_status   TEXT NOT NULL,
    reason_code TEXT NOT NULL,
    run_id      TEXT NOT NULL,
    created_at  INTEGER NOT NULL
);

CREATE INDEX idx_audit_tenant ON audit_log(tenant_id, created_at DESC);
CREATE INDEX idx_audit_run    ON audit_log(run_id);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
