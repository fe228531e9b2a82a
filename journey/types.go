// Package journey implements the Journey Engine: journey/state/transition
// definitions, per-session runtime contexts, a cache-through durable store,
// a model-backed matcher for activation and transition decisions, and the
// per-turn orchestrator that ties them together.
package journey

import (
	"fmt"
	"time"

	"github.com/aicc2025/ai-native-callcenter/flowerrors"
)

type (
	// Definition is a journey's immutable definition: a named multi-turn
	// task modelled as a finite state machine with prose state actions.
	Definition struct {
		ID                   string
		Name                 string
		ActivationConditions string
		InitialState         string
		States               map[string]State
		Transitions          []Transition
		Enabled              bool
	}

	// State is a node in a journey carrying the instruction the model
	// should follow while the conversation sits there.
	State struct {
		Name     string
		Action   string
		Tools    []string
		Metadata map[string]any
	}

	// Transition is a directed edge between two states guarded by a prose
	// condition and a numeric priority.
	Transition struct {
		FromState string
		ToState   string
		Condition string
		Priority  int
	}
)

// Validate checks the structural invariants from spec §3 / §8 invariant 1:
// the initial state exists, and every transition's endpoints resolve. file
// and index identify the source YAML file/entry for ValidationError.
func (d *Definition) Validate(file string, index int) error {
	if d.Name == "" {
		return flowerrors.NewValidationError(file, index, "name", "journey name must not be empty")
	}
	if len(d.States) == 0 {
		return flowerrors.NewValidationError(file, index, "states", "journey must declare at least one state")
	}
	if _, ok := d.States[d.InitialState]; !ok {
		return flowerrors.NewValidationError(file, index, "initial_state", fmt.Sprintf("initial state %q is not a declared state", d.InitialState))
	}
	for _, t := range d.Transitions {
		if _, ok := d.States[t.FromState]; !ok {
			return flowerrors.NewValidationError(file, index, "transitions.from_state", fmt.Sprintf("unknown from_state %q", t.FromState))
		}
		if _, ok := d.States[t.ToState]; !ok {
			return flowerrors.NewValidationError(file, index, "transitions.to_state", fmt.Sprintf("unknown to_state %q", t.ToState))
		}
	}
	return nil
}

// TransitionsFrom returns the transitions leaving state, sorted by
// descending priority with file order preserved for ties (stable sort over
// the declaration order).
func (d *Definition) TransitionsFrom(state string) []Transition {
	var out []Transition
	for _, t := range d.Transitions {
		if t.FromState == state {
			out = append(out, t)
		}
	}
	stableSortTransitions(out)
	return out
}

func stableSortTransitions(ts []Transition) {
	// Insertion sort: small N per state, stable, keeps declaration order
	// for equal priorities as required by spec §3 ("ties broken by file
	// order").
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].Priority > ts[j-1].Priority; j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

// Event is one entry in a context's append-only state_history.
type Event struct {
	Kind      string
	From      string
	To        string
	Reason    string
	Timestamp time.Time
}

const (
	EventJourneyActivated = "journey_activated"
	EventStateTransition  = "state_transition"
	EventJourneyCompleted = "journey_completed"
)
