package journey

import (
	"context"
	"fmt"
	"strings"

	fccache "github.com/aicc2025/ai-native-callcenter/cache"
	fcmodel "github.com/aicc2025/ai-native-callcenter/model"
	"github.com/aicc2025/ai-native-callcenter/telemetry"
)

// ActivationConfidenceFloor is the minimum model confidence required to
// activate a journey (spec §4.5; resolves the §9 open question in favor of
// enforcing the floor — see DESIGN.md).
const ActivationConfidenceFloor = 0.6

// ActivationResult is the outcome of activate_journey.
type ActivationResult struct {
	Matched    bool
	JourneyID  string
	Confidence float64
	Reasoning  string
}

// TransitionResult is the outcome of can_transition.
type TransitionResult struct {
	ShouldTransition bool
	ToState          string
	Reasoning        string
}

type activationModelResponse struct {
	Matched    bool    `json:"matched"`
	JourneyID  *string `json:"journey_id"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type transitionModelResponse struct {
	ShouldTransition bool    `json:"should_transition"`
	ToState          *string `json:"to_state"`
	Reasoning        string  `json:"reasoning"`
}

// Matcher implements the Journey Matcher (spec §4.5): two model-backed
// operations, both at temperature 0 with a JSON-object response contract.
// The model is untrusted — every returned id/state is re-validated against
// the caller's enumeration before use.
type Matcher struct {
	client fcmodel.Client
	cache  *fccache.Facade
	store  *Store
	log    telemetry.Logger
}

// NewMatcher builds a Journey Matcher.
func NewMatcher(client fcmodel.Client, cache *fccache.Facade, store *Store, log telemetry.Logger) *Matcher {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Matcher{client: client, cache: cache, store: store, log: log}
}

// ActivateJourney resolves which journey (if any) an utterance should
// activate, with an L2 cache keyed by session id and a stable hash of the
// utterance text (spec §9 open question, resolved).
func (m *Matcher) ActivateJourney(ctx context.Context, sessionID, utterance string, hints map[string]any) (*ActivationResult, error) {
	key := fccache.ActivationKey(sessionID, utterance)

	var cached ActivationResult
	err := m.cache.GetOrLoad(ctx, key, fccache.TTLActivation, func(ctx context.Context) (any, error) {
		return m.classifyActivation(ctx, utterance, hints)
	}, &cached)
	if err != nil {
		m.log.Warn(ctx, "journey activation failed, degrading to no match", "session_id", sessionID, "error", err.Error())
		return &ActivationResult{}, nil
	}
	return &cached, nil
}

func (m *Matcher) classifyActivation(ctx context.Context, utterance string, hints map[string]any) (*ActivationResult, error) {
	defs, err := m.store.GetAllJourneys(ctx)
	if err != nil {
		return nil, err
	}
	enabled := make([]*Definition, 0, len(defs))
	for _, d := range defs {
		if d.Enabled {
			enabled = append(enabled, d)
		}
	}
	if len(enabled) == 0 {
		return &ActivationResult{}, nil
	}

	var sb strings.Builder
	sb.WriteString("Available journeys:\n")
	for _, d := range enabled {
		fmt.Fprintf(&sb, "- id=%s name=%q activation_conditions=%q\n", d.ID, d.Name, d.ActivationConditions)
	}
	fmt.Fprintf(&sb, "\nUtterance: %q\n", utterance)
	if len(hints) > 0 {
		fmt.Fprintf(&sb, "Hints: %v\n", hints)
	}
	sb.WriteString("\nDecide whether the utterance should activate one of these journeys.")

	req := &fcmodel.Request{
		Temperature: 0,
		Messages: []*fcmodel.Message{
			fcmodel.System("You classify call center utterances against a catalog of journeys. Respond only with the requested JSON object."),
			fcmodel.User(sb.String()),
		},
		ResponseFormat: &fcmodel.ResponseFormat{
			Name: "journey_activation",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"matched":    map[string]any{"type": "boolean"},
					"journey_id": map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number"},
					"reasoning":  map[string]any{"type": "string"},
				},
				"required": []string{"matched", "confidence", "reasoning"},
			},
		},
	}

	var resp activationModelResponse
	if err := fcmodel.CompleteStructured(ctx, m.client, req, &resp); err != nil {
		return nil, err
	}

	result := &ActivationResult{Reasoning: resp.Reasoning, Confidence: resp.Confidence}
	if !resp.Matched || resp.JourneyID == nil {
		return result, nil
	}
	if !journeyIDKnown(enabled, *resp.JourneyID) {
		// Model hallucinated an unknown id: treated as no match (spec §4.5).
		return result, nil
	}
	if resp.Confidence < ActivationConfidenceFloor {
		return result, nil
	}
	result.Matched = true
	result.JourneyID = *resp.JourneyID
	return result, nil
}

func journeyIDKnown(defs []*Definition, id string) bool {
	for _, d := range defs {
		if d.ID == id {
			return true
		}
	}
	return false
}

// CanTransition decides whether the context should transition out of
// currentState, never caching the result (transition decisions are
// turn-specific, not reusable across utterances).
func (m *Matcher) CanTransition(ctx context.Context, def *Definition, currentState, utterance string, variables map[string]any) (*TransitionResult, error) {
	transitions := def.TransitionsFrom(currentState)
	if len(transitions) == 0 {
		return &TransitionResult{}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Journey %q is in state %q.\nPossible transitions, highest priority first:\n", def.Name, currentState)
	for _, t := range transitions {
		fmt.Fprintf(&sb, "- to=%q priority=%d when: %s\n", t.ToState, t.Priority, t.Condition)
	}
	fmt.Fprintf(&sb, "\nVariables: %v\nUtterance: %q\n", variables, utterance)
	sb.WriteString("\nDecide whether any transition condition is now satisfied.")

	req := &fcmodel.Request{
		Temperature: 0,
		Messages: []*fcmodel.Message{
			fcmodel.System("You evaluate state machine transition conditions for a call center journey. Respond only with the requested JSON object."),
			fcmodel.User(sb.String()),
		},
		ResponseFormat: &fcmodel.ResponseFormat{
			Name: "journey_transition",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"should_transition": map[string]any{"type": "boolean"},
					"to_state":          map[string]any{"type": "string"},
					"reasoning":         map[string]any{"type": "string"},
				},
				"required": []string{"should_transition", "reasoning"},
			},
		},
	}

	var resp transitionModelResponse
	if err := fcmodel.CompleteStructured(ctx, m.client, req, &resp); err != nil {
		m.log.Warn(ctx, "transition evaluation failed, degrading to no transition", "journey_id", def.ID, "state", currentState, "error", err.Error())
		return &TransitionResult{}, nil
	}

	result := &TransitionResult{Reasoning: resp.Reasoning}
	if !resp.ShouldTransition || resp.ToState == nil {
		return result, nil
	}
	if !isDeclaredTarget(transitions, *resp.ToState) {
		return result, nil
	}
	result.ShouldTransition = true
	result.ToState = *resp.ToState
	return result, nil
}

func isDeclaredTarget(transitions []Transition, to string) bool {
	for _, t := range transitions {
		if t.ToState == to {
			return true
		}
	}
	return false
}
