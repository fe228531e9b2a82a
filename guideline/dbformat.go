package guideline

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefinitionRow is the column-shaped representation of a Definition as
// stored in the guidelines table (spec §6).
type DefinitionRow struct {
	ID          string
	Scope       string
	Name        string
	Description string
	Condition   string
	Action      string

	KeywordsJSON []byte
	ToolsJSON    []byte

	Priority  int
	Enabled   bool
	JourneyID *string
	StateName *string
}

// ToDBFormat encodes d into its column-shaped storage representation.
func (d *Definition) ToDBFormat() (DefinitionRow, error) {
	keywords, err := json.Marshal(d.Keywords)
	if err != nil {
		return DefinitionRow{}, fmt.Errorf("guideline: marshal keywords: %w", err)
	}
	tools, err := json.Marshal(d.Tools)
	if err != nil {
		return DefinitionRow{}, fmt.Errorf("guideline: marshal tools: %w", err)
	}
	return DefinitionRow{
		ID:           d.ID,
		Scope:        string(d.Scope),
		Name:         d.Name,
		Description:  d.Description,
		Condition:    d.Condition,
		Action:       d.Action,
		KeywordsJSON: keywords,
		ToolsJSON:    tools,
		Priority:     d.Priority,
		Enabled:      d.Enabled,
		JourneyID:    nullableString(d.JourneyID),
		StateName:    nullableString(d.StateName),
	}, nil
}

// DefinitionFromDBFormat decodes row back into a Definition. Round-tripping
// a Definition through ToDBFormat then DefinitionFromDBFormat is identity on
// every declared field (spec §8 Testable Property).
func DefinitionFromDBFormat(row DefinitionRow) (*Definition, error) {
	d := &Definition{
		ID:          row.ID,
		Scope:       Scope(row.Scope),
		Name:        row.Name,
		Description: row.Description,
		Condition:   row.Condition,
		Action:      row.Action,
		Priority:    row.Priority,
		Enabled:     row.Enabled,
	}
	if err := json.Unmarshal(row.KeywordsJSON, &d.Keywords); err != nil {
		return nil, fmt.Errorf("guideline: unmarshal keywords: %w", err)
	}
	if err := json.Unmarshal(row.ToolsJSON, &d.Tools); err != nil {
		return nil, fmt.Errorf("guideline: unmarshal tools: %w", err)
	}
	if row.JourneyID != nil {
		d.JourneyID = *row.JourneyID
	}
	if row.StateName != nil {
		d.StateName = *row.StateName
	}
	return d, nil
}

// AuditRow is the column-shaped representation of an AuditRecord as stored
// in the validation_audit table.
type AuditRow struct {
	ID        string
	SessionID string
	JourneyID *string

	GuidelineIDsJSON   []byte
	Valid              bool
	ViolationsJSON     []byte
	SuggestedFixesJSON []byte

	Confidence    float64
	LatencyMS     int64
	OriginalReply string
	FixedReply    *string
	CreatedAt     time.Time
}

// ToDBFormat encodes rec into its column-shaped storage representation.
func (rec *AuditRecord) ToDBFormat() (AuditRow, error) {
	guidelineIDs, err := json.Marshal(rec.GuidelineIDs)
	if err != nil {
		return AuditRow{}, fmt.Errorf("guideline: marshal guideline_ids: %w", err)
	}
	violations, err := json.Marshal(rec.Violations)
	if err != nil {
		return AuditRow{}, fmt.Errorf("guideline: marshal violations: %w", err)
	}
	fixes, err := json.Marshal(rec.SuggestedFixes)
	if err != nil {
		return AuditRow{}, fmt.Errorf("guideline: marshal suggested_fixes: %w", err)
	}
	return AuditRow{
		ID:                 rec.ID,
		SessionID:          rec.SessionID,
		JourneyID:          rec.JourneyID,
		GuidelineIDsJSON:   guidelineIDs,
		Valid:              rec.Valid,
		ViolationsJSON:     violations,
		SuggestedFixesJSON: fixes,
		Confidence:         rec.Confidence,
		LatencyMS:          rec.LatencyMS,
		OriginalReply:      rec.OriginalReply,
		FixedReply:         rec.FixedReply,
		CreatedAt:          rec.CreatedAt,
	}, nil
}

// AuditRecordFromDBFormat decodes row back into an AuditRecord.
// Round-tripping an AuditRecord through ToDBFormat then
// AuditRecordFromDBFormat is identity on every declared field (spec §8
// Testable Property).
func AuditRecordFromDBFormat(row AuditRow) (*AuditRecord, error) {
	rec := &AuditRecord{
		ID:            row.ID,
		SessionID:     row.SessionID,
		JourneyID:     row.JourneyID,
		Valid:         row.Valid,
		Confidence:    row.Confidence,
		LatencyMS:     row.LatencyMS,
		OriginalReply: row.OriginalReply,
		FixedReply:    row.FixedReply,
		CreatedAt:     row.CreatedAt,
	}
	if err := json.Unmarshal(row.GuidelineIDsJSON, &rec.GuidelineIDs); err != nil {
		return nil, fmt.Errorf("guideline: unmarshal guideline_ids: %w", err)
	}
	if err := json.Unmarshal(row.ViolationsJSON, &rec.Violations); err != nil {
		return nil, fmt.Errorf("guideline: unmarshal violations: %w", err)
	}
	if err := json.Unmarshal(row.SuggestedFixesJSON, &rec.SuggestedFixes); err != nil {
		return nil, fmt.Errorf("guideline: unmarshal suggested_fixes: %w", err)
	}
	return rec, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
