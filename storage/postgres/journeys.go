// Package postgres implements the durable relational store (spec §6): the
// journeys, journey_contexts, guidelines, and validation_audit tables,
// backed by github.com/jackc/pgx/v5 and pgxpool.Pool — grounded on the
// memory/postgres session store pattern from the companion example pack
// (raw SQL plus pgx.CollectRows), since the teacher itself favors Mongo for
// its own durable store and this spec mandates a relational one.
package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aicc2025/ai-native-callcenter/journey"
)

// Store is the durable relational backend used by journey.Store and
// guideline.Store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, pings it, and runs Migrate so the journeys,
// journey_contexts, guidelines, and validation_audit tables exist before the
// engine starts serving turns.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-open connection pool without running migrations,
// for callers that manage schema lifecycle separately (tests, mainly).
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases every connection held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// UpsertJourney inserts or updates a journey definition keyed by name (spec
// §6: "the loader performs upserts keyed by name for journeys").
func (s *Store) UpsertJourney(ctx context.Context, def *journey.Definition) error {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	row, err := def.ToDBFormat()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	const q = `
		INSERT INTO journeys
		    (id, name, activation_conditions, initial_state, states, transitions, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
		    activation_conditions = EXCLUDED.activation_conditions,
		    initial_state         = EXCLUDED.initial_state,
		    states                = EXCLUDED.states,
		    transitions           = EXCLUDED.transitions,
		    enabled               = EXCLUDED.enabled
		RETURNING id`

	return s.pool.QueryRow(ctx, q, row.ID, row.Name, row.ActivationConditions, row.InitialState,
		row.StatesJSON, row.TransitionsJSON, row.Enabled).Scan(&def.ID)
}

// GetJourney returns the journey with id, or nil if not found.
func (s *Store) GetJourney(ctx context.Context, id string) (*journey.Definition, error) {
	const q = `
		SELECT id, name, activation_conditions, initial_state, states, transitions, enabled
		FROM   journeys
		WHERE  id = $1`
	return s.scanJourney(s.pool.QueryRow(ctx, q, id))
}

// GetJourneyByName returns the journey with name, or nil if not found.
func (s *Store) GetJourneyByName(ctx context.Context, name string) (*journey.Definition, error) {
	const q = `
		SELECT id, name, activation_conditions, initial_state, states, transitions, enabled
		FROM   journeys
		WHERE  name = $1`
	return s.scanJourney(s.pool.QueryRow(ctx, q, name))
}

func (s *Store) scanJourney(r pgx.Row) (*journey.Definition, error) {
	var row journey.DefinitionRow
	err := r.Scan(&row.ID, &row.Name, &row.ActivationConditions, &row.InitialState, &row.StatesJSON, &row.TransitionsJSON, &row.Enabled)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan journey: %w", err)
	}
	def, err := journey.DefinitionFromDBFormat(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return def, nil
}

// GetAllJourneys returns every journey definition.
func (s *Store) GetAllJourneys(ctx context.Context) ([]*journey.Definition, error) {
	const q = `
		SELECT id, name, activation_conditions, initial_state, states, transitions, enabled
		FROM   journeys
		ORDER  BY name`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: query journeys: %w", err)
	}
	defer rows.Close()

	var out []*journey.Definition
	for rows.Next() {
		def, err := s.scanJourney(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate journeys: %w", err)
	}
	return out, nil
}

// InsertContext persists a newly activated journey context.
func (s *Store) InsertContext(ctx context.Context, c *journey.Context) error {
	row, err := c.ToDBFormat()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	const q = `
		INSERT INTO journey_contexts
		    (id, session_id, journey_id, journey_name, current_state, variables,
		     state_history, activated_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.pool.Exec(ctx, q, row.ID, row.SessionID, row.JourneyID, row.JourneyName, row.CurrentState,
		row.VariablesJSON, row.StateHistoryJSON, row.ActivatedAt, row.CompletedAt, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert context: %w", err)
	}
	return nil
}

// UpdateContext persists a context mutation (spec §4.7's only write path
// besides InsertContext).
func (s *Store) UpdateContext(ctx context.Context, c *journey.Context) error {
	row, err := c.ToDBFormat()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	const q = `
		UPDATE journey_contexts
		SET    current_state = $2, variables = $3, state_history = $4,
		       completed_at  = $5, updated_at = $6
		WHERE  id = $1`

	_, err = s.pool.Exec(ctx, q, row.ID, row.CurrentState, row.VariablesJSON, row.StateHistoryJSON, row.CompletedAt, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update context: %w", err)
	}
	return nil
}

// GetActiveContext returns the most recently activated, not-yet-completed
// context for sessionID, or nil if none exists.
func (s *Store) GetActiveContext(ctx context.Context, sessionID string) (*journey.Context, error) {
	const q = `
		SELECT id, session_id, journey_id, journey_name, current_state, variables,
		       state_history, activated_at, completed_at, created_at, updated_at
		FROM   journey_contexts
		WHERE  session_id = $1 AND completed_at IS NULL
		ORDER  BY activated_at DESC
		LIMIT  1`

	var row journey.ContextRow
	err := s.pool.QueryRow(ctx, q, sessionID).Scan(&row.ID, &row.SessionID, &row.JourneyID, &row.JourneyName, &row.CurrentState,
		&row.VariablesJSON, &row.StateHistoryJSON, &row.ActivatedAt, &row.CompletedAt, &row.CreatedAt, &row.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active context: %w", err)
	}
	c, err := journey.ContextFromDBFormat(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return c, nil
}
