package journey

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefinitionRow is the column-shaped representation of a Definition as
// stored in the journeys table (spec §6): scalar fields plus the two
// nested collections pre-encoded as JSON, matching the table's json
// columns exactly.
type DefinitionRow struct {
	ID                   string
	Name                 string
	ActivationConditions string
	InitialState         string
	StatesJSON           []byte
	TransitionsJSON      []byte
	Enabled              bool
}

// ToDBFormat encodes d into its column-shaped storage representation.
func (d *Definition) ToDBFormat() (DefinitionRow, error) {
	states, err := json.Marshal(d.States)
	if err != nil {
		return DefinitionRow{}, fmt.Errorf("journey: marshal states: %w", err)
	}
	transitions, err := json.Marshal(d.Transitions)
	if err != nil {
		return DefinitionRow{}, fmt.Errorf("journey: marshal transitions: %w", err)
	}
	return DefinitionRow{
		ID:                   d.ID,
		Name:                 d.Name,
		ActivationConditions: d.ActivationConditions,
		InitialState:         d.InitialState,
		StatesJSON:           states,
		TransitionsJSON:      transitions,
		Enabled:              d.Enabled,
	}, nil
}

// DefinitionFromDBFormat decodes row back into a Definition. Round-tripping
// a Definition through ToDBFormat then DefinitionFromDBFormat is identity on
// every declared field (spec §8 Testable Property: "YAML -> runtime record
// -> to_db_format -> runtime record is identity on all declared fields").
func DefinitionFromDBFormat(row DefinitionRow) (*Definition, error) {
	d := &Definition{
		ID:                   row.ID,
		Name:                 row.Name,
		ActivationConditions: row.ActivationConditions,
		InitialState:         row.InitialState,
		Enabled:              row.Enabled,
	}
	if err := json.Unmarshal(row.StatesJSON, &d.States); err != nil {
		return nil, fmt.Errorf("journey: unmarshal states: %w", err)
	}
	if err := json.Unmarshal(row.TransitionsJSON, &d.Transitions); err != nil {
		return nil, fmt.Errorf("journey: unmarshal transitions: %w", err)
	}
	return d, nil
}

// ContextRow is the column-shaped representation of a Context as stored in
// the journey_contexts table.
type ContextRow struct {
	ID           string
	SessionID    string
	JourneyID    string
	JourneyName  string
	CurrentState string

	VariablesJSON    []byte
	StateHistoryJSON []byte

	ActivatedAt time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ToDBFormat encodes c into its column-shaped storage representation.
func (c *Context) ToDBFormat() (ContextRow, error) {
	variables, err := json.Marshal(c.Variables)
	if err != nil {
		return ContextRow{}, fmt.Errorf("journey: marshal variables: %w", err)
	}
	history, err := json.Marshal(c.StateHistory)
	if err != nil {
		return ContextRow{}, fmt.Errorf("journey: marshal state_history: %w", err)
	}
	return ContextRow{
		ID:               c.ID,
		SessionID:        c.SessionID,
		JourneyID:        c.JourneyID,
		JourneyName:      c.JourneyName,
		CurrentState:     c.CurrentState,
		VariablesJSON:    variables,
		StateHistoryJSON: history,
		ActivatedAt:      c.ActivatedAt,
		CompletedAt:      c.CompletedAt,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}, nil
}

// ContextFromDBFormat decodes row back into a Context. Round-tripping a
// Context through ToDBFormat then ContextFromDBFormat is identity on every
// declared field, including the full state_history (spec §8).
func ContextFromDBFormat(row ContextRow) (*Context, error) {
	c := &Context{
		ID:           row.ID,
		SessionID:    row.SessionID,
		JourneyID:    row.JourneyID,
		JourneyName:  row.JourneyName,
		CurrentState: row.CurrentState,
		ActivatedAt:  row.ActivatedAt,
		CompletedAt:  row.CompletedAt,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if err := json.Unmarshal(row.VariablesJSON, &c.Variables); err != nil {
		return nil, fmt.Errorf("journey: unmarshal variables: %w", err)
	}
	if err := json.Unmarshal(row.StateHistoryJSON, &c.StateHistory); err != nil {
		return nil, fmt.Errorf("journey: unmarshal state_history: %w", err)
	}
	return c, nil
}
