package postgres

import (
	"context"
	"fmt"
)

// schema is the durable store's table DDL, run once at startup via Migrate.
// Kept inline rather than behind a migration framework: four tables, no
// schema history to manage yet.
const schema = `
CREATE TABLE IF NOT EXISTS journeys (
    id                    TEXT PRIMARY KEY,
    name                  TEXT UNIQUE NOT NULL,
    activation_conditions TEXT NOT NULL,
    initial_state         TEXT NOT NULL,
    states                JSONB NOT NULL,
    transitions           JSONB NOT NULL,
    enabled               BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS journey_contexts (
    id            TEXT PRIMARY KEY,
    session_id    TEXT NOT NULL,
    journey_id    TEXT NOT NULL,
    journey_name  TEXT NOT NULL,
    current_state TEXT NOT NULL,
    variables     JSONB NOT NULL,
    state_history JSONB NOT NULL,
    activated_at  TIMESTAMPTZ NOT NULL,
    completed_at  TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS journey_contexts_session_active_idx
    ON journey_contexts (session_id, activated_at DESC)
    WHERE completed_at IS NULL;

CREATE TABLE IF NOT EXISTS guidelines (
    id          TEXT PRIMARY KEY,
    scope       TEXT NOT NULL,
    name        TEXT NOT NULL,
    description TEXT NOT NULL,
    condition   TEXT NOT NULL,
    action      TEXT NOT NULL,
    keywords    JSONB NOT NULL,
    tools       JSONB NOT NULL,
    priority    INTEGER NOT NULL DEFAULT 0,
    enabled     BOOLEAN NOT NULL DEFAULT TRUE,
    journey_id  TEXT,
    state_name  TEXT
);

CREATE TABLE IF NOT EXISTS validation_audit (
    id              TEXT PRIMARY KEY,
    session_id      TEXT NOT NULL,
    journey_id      TEXT,
    guideline_ids   JSONB NOT NULL,
    valid           BOOLEAN NOT NULL,
    violations      JSONB NOT NULL,
    suggested_fixes JSONB NOT NULL,
    confidence      DOUBLE PRECISION NOT NULL,
    latency_ms      BIGINT NOT NULL,
    original_reply  TEXT NOT NULL,
    fixed_reply     TEXT,
    created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS validation_audit_session_idx ON validation_audit (session_id, created_at DESC);
`

// Migrate creates the durable store's tables if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
