package guideline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	fcmodel "github.com/aicc2025/ai-native-callcenter/model"
	"github.com/aicc2025/ai-native-callcenter/telemetry"
)

// Severity levels for a reported violation (spec §4.8: recorded but not
// branched on in the current core).
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Violation is one guideline breach reported by the validator.
type Violation struct {
	GuidelineID string
	Name        string
	Description string
	Severity    Severity
}

// ValidationResult is the outcome of validate_response.
type ValidationResult struct {
	Valid          bool
	Violations     []Violation
	SuggestedFixes []string
	Confidence     float64
	FixedResponse  *string
}

// AuditRecord is an immutable row describing one validation decision and
// its latency (spec §3).
type AuditRecord struct {
	ID             string
	SessionID      string
	JourneyID      *string
	GuidelineIDs   []string
	Valid          bool
	Violations     []Violation
	SuggestedFixes []string
	Confidence     float64
	LatencyMS      int64
	OriginalReply  string
	FixedReply     *string
	CreatedAt      time.Time
}

// AuditStore persists ValidationAudit rows (spec §6: the
// `validation_audit` table). storage/postgres implements it.
type AuditStore interface {
	InsertAuditRecord(ctx context.Context, rec *AuditRecord) error
}

type violationWire struct {
	GuidelineID string `json:"guideline_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

type validationResponse struct {
	IsValid        bool            `json:"is_valid"`
	Violations     []violationWire `json:"violations"`
	Confidence     float64         `json:"confidence"`
	SuggestedFixes []string        `json:"suggested_fixes"`
}

// Validator implements the Response Validator (spec §4.8).
type Validator struct {
	client fcmodel.Client
	audit  AuditStore
	log    telemetry.Logger
	now    func() time.Time
}

// NewValidator builds a Response Validator.
func NewValidator(client fcmodel.Client, audit AuditStore, log telemetry.Logger) *Validator {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Validator{client: client, audit: audit, log: log, now: time.Now}
}

// ValidateResponse scores reply against guidelines and, on a violation with
// suggested fixes, issues a second free-form correction call.
func (v *Validator) ValidateResponse(ctx context.Context, reply string, guidelines []*Definition, sessionID string, journeyID *string) ValidationResult {
	start := v.now()

	if len(guidelines) == 0 {
		result := ValidationResult{Valid: true, Confidence: 1.0}
		v.writeAudit(ctx, sessionID, journeyID, nil, reply, result, start)
		return result
	}

	guidelineIDs := make([]string, len(guidelines))
	for i, g := range guidelines {
		guidelineIDs[i] = g.ID
	}

	result, ok := v.scoreReply(ctx, reply, guidelines)
	if !ok {
		// Validator-call failure: conservative default so a model outage
		// never gags the agent (spec §4.8).
		result = ValidationResult{Valid: true, Confidence: 0.0}
		v.writeAudit(ctx, sessionID, journeyID, guidelineIDs, reply, result, start)
		return result
	}

	if !result.Valid && len(result.SuggestedFixes) > 0 {
		if fixed, ok := v.autoFix(ctx, reply, result.Violations, result.SuggestedFixes); ok {
			result.FixedResponse = &fixed
		}
	}

	v.writeAudit(ctx, sessionID, journeyID, guidelineIDs, reply, result, start)
	return result
}

func (v *Validator) scoreReply(ctx context.Context, reply string, guidelines []*Definition) (ValidationResult, bool) {
	var sb strings.Builder
	sb.WriteString("Active guidelines:\n")
	for _, g := range guidelines {
		fmt.Fprintf(&sb, "- id=%s name=%q description=%q condition=%q action=%q\n", g.ID, g.Name, g.Description, g.Condition, g.Action)
	}
	fmt.Fprintf(&sb, "\nCandidate reply: %q\n", reply)
	sb.WriteString("\nList any guideline violations in the reply.")

	req := &fcmodel.Request{
		Temperature: 0,
		Messages: []*fcmodel.Message{
			fcmodel.System("You audit a call center agent's reply against a list of business guidelines. Respond only with the requested JSON object."),
			fcmodel.User(sb.String()),
		},
		ResponseFormat: &fcmodel.ResponseFormat{
			Name: "response_validation",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"is_valid": map[string]any{"type": "boolean"},
					"violations": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"guideline_id": map[string]any{"type": "string"},
								"name":         map[string]any{"type": "string"},
								"description":  map[string]any{"type": "string"},
								"severity":     map[string]any{"type": "string", "enum": []string{"critical", "high", "medium", "low"}},
							},
							"required": []string{"guideline_id", "name", "description", "severity"},
						},
					},
					"confidence":      map[string]any{"type": "number"},
					"suggested_fixes": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []string{"is_valid", "violations", "confidence", "suggested_fixes"},
			},
		},
	}

	var resp validationResponse
	if err := fcmodel.CompleteStructured(ctx, v.client, req, &resp); err != nil {
		v.log.Warn(ctx, "response validation call failed", "error", err.Error())
		return ValidationResult{}, false
	}

	violations := make([]Violation, len(resp.Violations))
	for i, w := range resp.Violations {
		violations[i] = Violation{GuidelineID: w.GuidelineID, Name: w.Name, Description: w.Description, Severity: Severity(w.Severity)}
	}
	return ValidationResult{
		Valid:          resp.IsValid,
		Violations:     violations,
		SuggestedFixes: resp.SuggestedFixes,
		Confidence:     resp.Confidence,
	}, true
}

func (v *Validator) autoFix(ctx context.Context, reply string, violations []Violation, fixes []string) (string, bool) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Original reply: %q\n\nViolations:\n", reply)
	for _, vi := range violations {
		fmt.Fprintf(&sb, "- %s: %s\n", vi.Name, vi.Description)
	}
	sb.WriteString("\nSuggested fixes:\n")
	for _, f := range fixes {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	sb.WriteString("\nRewrite the reply so it addresses every violation while preserving its intent and tone. Return only the corrected reply text.")

	req := &fcmodel.Request{
		Temperature: 0.3,
		Messages: []*fcmodel.Message{
			fcmodel.System("You rewrite call center agent replies to fix guideline violations without changing intent or tone."),
			fcmodel.User(sb.String()),
		},
	}

	resp, err := v.client.Complete(ctx, req)
	if err != nil {
		v.log.Warn(ctx, "auto-fix call failed, leaving fixed_response null", "error", err.Error())
		return "", false
	}
	return strings.TrimSpace(resp.Text), true
}

func (v *Validator) writeAudit(ctx context.Context, sessionID string, journeyID *string, guidelineIDs []string, original string, result ValidationResult, start time.Time) {
	rec := &AuditRecord{
		ID:             uuid.NewString(),
		SessionID:      sessionID,
		JourneyID:      journeyID,
		GuidelineIDs:   guidelineIDs,
		Valid:          result.Valid,
		Violations:     result.Violations,
		SuggestedFixes: result.SuggestedFixes,
		Confidence:     result.Confidence,
		LatencyMS:      time.Since(start).Milliseconds(),
		OriginalReply:  original,
		FixedReply:     result.FixedResponse,
		CreatedAt:      v.now(),
	}
	// Audit-write failures are logged but never propagated: observability
	// must not block the conversation (spec §4.8, §7).
	if err := v.audit.InsertAuditRecord(ctx, rec); err != nil {
		v.log.Error(ctx, "failed to write validation audit record", "session_id", sessionID, "error", err.Error())
	}
}
