package journey

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aicc2025/ai-native-callcenter/telemetry"
)

// Meta reports what ProcessMessage did during one turn, per spec §4.7.
type Meta struct {
	IsNewJourney       bool
	JourneyActivated   bool
	TransitionOccurred bool
}

// Engine is the Journey Engine: the session-level orchestrator that loads
// or activates a context, advances it, and emits guidance text.
type Engine struct {
	store   *Store
	matcher *Matcher
	log     telemetry.Logger
	metrics telemetry.Metrics
	now     func() time.Time
}

// NewEngine builds a Journey Engine.
func NewEngine(store *Store, matcher *Matcher, log telemetry.Logger, metrics telemetry.Metrics) *Engine {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Engine{store: store, matcher: matcher, log: log, metrics: metrics, now: time.Now}
}

// ProcessMessage implements spec §4.7's per-turn orchestration.
func (e *Engine) ProcessMessage(ctx context.Context, sessionID, utterance string, hints map[string]any) (*Context, *State, Meta, error) {
	var meta Meta

	active, err := e.store.GetActiveContext(ctx, sessionID)
	if err != nil {
		return nil, nil, meta, err
	}

	if active == nil {
		result, err := e.matcher.ActivateJourney(ctx, sessionID, utterance, hints)
		if err != nil {
			return nil, nil, meta, err
		}
		if !result.Matched {
			return nil, nil, meta, nil
		}
		def, err := e.store.GetJourney(ctx, result.JourneyID)
		if err != nil {
			return nil, nil, meta, err
		}
		if def == nil {
			e.log.Warn(ctx, "activation matched unknown journey id", "journey_id", result.JourneyID)
			return nil, nil, meta, nil
		}
		active = NewContext(uuid.NewString(), sessionID, def, nil, e.now())
		if err := e.store.CreateContext(ctx, active); err != nil {
			return nil, nil, meta, err
		}
		meta.IsNewJourney = true
		meta.JourneyActivated = true
		e.metrics.IncCounter("journey.activations", 1, "journey_id", def.ID)
	}

	def, err := e.store.GetJourney(ctx, active.JourneyID)
	if err != nil {
		return active, nil, meta, err
	}
	if def == nil {
		e.log.Error(ctx, "context references unknown journey definition", "journey_id", active.JourneyID, "context_id", active.ID)
		return active, nil, meta, nil
	}
	state, ok := def.States[active.CurrentState]
	if !ok {
		e.log.Error(ctx, "context references unknown state", "state", active.CurrentState, "context_id", active.ID)
		return active, nil, meta, nil
	}

	if !meta.JourneyActivated {
		transition, err := e.matcher.CanTransition(ctx, def, active.CurrentState, utterance, active.Variables)
		if err != nil {
			return active, &state, meta, err
		}
		if transition.ShouldTransition {
			active.ExecuteTransition(transition.ToState, transition.Reasoning, e.now())
			if err := e.store.UpdateContext(ctx, active); err != nil {
				return active, &state, meta, err
			}
			meta.TransitionOccurred = true
			state = def.States[active.CurrentState]
			e.metrics.IncCounter("journey.transitions", 1, "journey_id", def.ID, "to_state", active.CurrentState)
		}
	}

	return active, &state, meta, nil
}

// GetJourneyGuidance builds the prompt fragment for the current state:
// journey name/description, state name/action/tools, and the possible
// transitions in descending priority order (spec §4.7).
func GetJourneyGuidance(def *Definition, state *State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Journey: %s\n", def.Name)
	if def.ActivationConditions != "" {
		fmt.Fprintf(&sb, "Description: %s\n", def.ActivationConditions)
	}
	fmt.Fprintf(&sb, "Current state: %s\n", state.Name)
	fmt.Fprintf(&sb, "Action: %s\n", state.Action)
	if len(state.Tools) > 0 {
		fmt.Fprintf(&sb, "Available tools: %s\n", strings.Join(state.Tools, ", "))
	}
	transitions := def.TransitionsFrom(state.Name)
	if len(transitions) > 0 {
		sb.WriteString("Possible transitions:\n")
		for _, t := range transitions {
			fmt.Fprintf(&sb, "- to '%s' when: %s\n", t.ToState, t.Condition)
		}
	}
	return sb.String()
}
