package postgres

import (
	"context"
	"fmt"

	"github.com/aicc2025/ai-native-callcenter/guideline"
)

// InsertAuditRecord persists one validation decision (spec §6: the
// `validation_audit` table). Failures are logged by the caller and never
// block the conversation; this method only reports them upward.
func (s *Store) InsertAuditRecord(ctx context.Context, rec *guideline.AuditRecord) error {
	row, err := rec.ToDBFormat()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	const q = `
		INSERT INTO validation_audit
		    (id, session_id, journey_id, guideline_ids, valid, violations,
		     suggested_fixes, confidence, latency_ms, original_reply, fixed_reply, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.pool.Exec(ctx, q, row.ID, row.SessionID, row.JourneyID, row.GuidelineIDsJSON, row.Valid, row.ViolationsJSON,
		row.SuggestedFixesJSON, row.Confidence, row.LatencyMS, row.OriginalReply, row.FixedReply, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert audit record: %w", err)
	}
	return nil
}
