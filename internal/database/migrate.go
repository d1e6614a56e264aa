package database

import (
	"context"
	"fmt"
)

// Only the audit trail lives in postgres; sessions stay in memory.
const auditMigration = `
CREATE TABLE IF NOT EXISTS auth_events (
    id uuid PRIMARY KEY,
    session_id text NOT NULL,
    event_type text NOT NULL,
    phone_masked text,
    reason text,
    created_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS auth_events_session_id_idx
ON auth_events (session_id, created_at DESC);

CREATE INDEX IF NOT EXISTS auth_events_created_at_idx
ON auth_events (created_at);
`

func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, auditMigration); err != nil {
		return fmt.Errorf("run audit migration: %w", err)
	}
	return nil
}
