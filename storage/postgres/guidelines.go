package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aicc2025/ai-native-callcenter/guideline"
)

// UpsertGuideline inserts or updates a guideline definition keyed by id
// (spec §6: "upserts keyed by id for guidelines").
func (s *Store) UpsertGuideline(ctx context.Context, def *guideline.Definition) error {
	row, err := def.ToDBFormat()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	const q = `
		INSERT INTO guidelines
		    (id, scope, name, description, condition, action, keywords, tools,
		     priority, enabled, journey_id, state_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
		    scope       = EXCLUDED.scope,
		    name        = EXCLUDED.name,
		    description = EXCLUDED.description,
		    condition   = EXCLUDED.condition,
		    action      = EXCLUDED.action,
		    keywords    = EXCLUDED.keywords,
		    tools       = EXCLUDED.tools,
		    priority    = EXCLUDED.priority,
		    enabled     = EXCLUDED.enabled,
		    journey_id  = EXCLUDED.journey_id,
		    state_name  = EXCLUDED.state_name`

	_, err = s.pool.Exec(ctx, q, row.ID, row.Scope, row.Name, row.Description, row.Condition, row.Action,
		row.KeywordsJSON, row.ToolsJSON, row.Priority, row.Enabled, row.JourneyID, row.StateName)
	if err != nil {
		return fmt.Errorf("postgres: upsert guideline: %w", err)
	}
	return nil
}

// GetGuideline returns the guideline with id, or nil if not found.
func (s *Store) GetGuideline(ctx context.Context, id string) (*guideline.Definition, error) {
	const q = `
		SELECT id, scope, name, description, condition, action, keywords, tools,
		       priority, enabled, journey_id, state_name
		FROM   guidelines
		WHERE  id = $1`
	return s.scanGuideline(s.pool.QueryRow(ctx, q, id))
}

// GetAllGuidelines returns every guideline definition.
func (s *Store) GetAllGuidelines(ctx context.Context) ([]*guideline.Definition, error) {
	const q = `
		SELECT id, scope, name, description, condition, action, keywords, tools,
		       priority, enabled, journey_id, state_name
		FROM   guidelines
		ORDER  BY name`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: query guidelines: %w", err)
	}
	defer rows.Close()

	var out []*guideline.Definition
	for rows.Next() {
		def, err := s.scanGuideline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate guidelines: %w", err)
	}
	return out, nil
}

func (s *Store) scanGuideline(r pgx.Row) (*guideline.Definition, error) {
	var row guideline.DefinitionRow
	err := r.Scan(&row.ID, &row.Scope, &row.Name, &row.Description, &row.Condition, &row.Action,
		&row.KeywordsJSON, &row.ToolsJSON, &row.Priority, &row.Enabled, &row.JourneyID, &row.StateName)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan guideline: %w", err)
	}
	def, err := guideline.DefinitionFromDBFormat(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return def, nil
}
