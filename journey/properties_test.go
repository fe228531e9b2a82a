package journey

import (
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestDefinitionValidateAcceptsStructurallySoundJourneysProperty verifies
// invariant 1: for every loaded journey, initial_state is a declared state
// and every transition's endpoints resolve.
func TestDefinitionValidateAcceptsStructurallySoundJourneysProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a journey built from a non-empty state set with endpoint-resolving transitions validates", prop.ForAll(
		func(tc journeyPropertyCase) bool {
			def := tc.toDefinition()
			return def.Validate("generated.yaml", 0) == nil
		},
		genJourneyPropertyCase(),
	))

	properties.TestingRun(t)
}

// TestExecuteTransitionProperty verifies invariant 5: after
// ExecuteTransition(s), current_state == s, state_history grows by exactly
// one state_transition event, and updated_at is monotonically
// non-decreasing.
func TestExecuteTransitionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("ExecuteTransition updates state, appends one event, and never rewinds updated_at", prop.ForAll(
		func(toState, reason string, deltaSeconds int) bool {
			def := validDefinition()
			now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			c := NewContext("ctx", "sess", def, nil, now)
			historyBefore := len(c.StateHistory)

			later := now.Add(time.Duration(deltaSeconds) * time.Second)
			c.ExecuteTransition(toState, reason, later)

			if c.CurrentState != toState {
				return false
			}
			if len(c.StateHistory) != historyBefore+1 {
				return false
			}
			last := c.StateHistory[len(c.StateHistory)-1]
			if last.Kind != EventStateTransition {
				return false
			}
			return !c.UpdatedAt.Before(now)
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

// TestCompleteIdempotenceProperty verifies invariant 6: after complete(),
// completed_at is set and is_active() is false; a second complete() leaves
// both unchanged.
func TestCompleteIdempotenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a second complete() call is a no-op", prop.ForAll(
		func(deltaSeconds int) bool {
			def := validDefinition()
			now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			c := NewContext("ctx", "sess", def, nil, now)

			first := now.Add(time.Duration(deltaSeconds) * time.Second)
			c.Complete(first)
			if c.CompletedAt == nil || c.IsActive() {
				return false
			}
			completedAtAfterFirst := *c.CompletedAt
			historyLenAfterFirst := len(c.StateHistory)

			second := first.Add(time.Hour)
			warned := c.Complete(second)
			if !warned {
				return false
			}
			if !c.CompletedAt.Equal(completedAtAfterFirst) {
				return false
			}
			return len(c.StateHistory) == historyLenAfterFirst
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

type journeyPropertyCase struct {
	stateNames []string
	initial    string
	transition struct {
		fromIdx, toIdx int
	}
}

func (tc journeyPropertyCase) toDefinition() *Definition {
	states := make(map[string]State, len(tc.stateNames))
	for _, n := range tc.stateNames {
		states[n] = State{Name: n, Action: "do something"}
	}
	return &Definition{
		Name:         "generated",
		InitialState: tc.initial,
		States:       states,
		Transitions: []Transition{
			{
				FromState: tc.stateNames[tc.transition.fromIdx],
				ToState:   tc.stateNames[tc.transition.toIdx],
				Condition: "some condition",
				Priority:  0,
			},
		},
	}
}

func genJourneyPropertyCase() gopter.Gen {
	return gen.IntRange(1, 6).FlatMap(func(n any) gopter.Gen {
		count := n.(int)
		return gen.SliceOfN(count, genUniqueAlphaState()).FlatMap(func(names any) gopter.Gen {
			stateNames := dedupeNonEmpty(names.([]string))
			if len(stateNames) == 0 {
				stateNames = []string{"s0"}
			}
			return gopter.CombineGens(
				gen.IntRange(0, len(stateNames)-1),
				gen.IntRange(0, len(stateNames)-1),
				gen.IntRange(0, len(stateNames)-1),
			).Map(func(vals []any) journeyPropertyCase {
				tc := journeyPropertyCase{stateNames: stateNames, initial: stateNames[vals[0].(int)]}
				tc.transition.fromIdx = vals[1].(int)
				tc.transition.toIdx = vals[2].(int)
				return tc
			})
		}, reflect.TypeOf(journeyPropertyCase{}))
	}, reflect.TypeOf(journeyPropertyCase{}))
}

func genUniqueAlphaState() gopter.Gen {
	return gen.IntRange(1, 8).FlatMap(func(length any) gopter.Gen {
		return gen.SliceOfN(length.(int), gen.AlphaChar()).Map(func(chars []rune) string {
			return "s_" + string(chars)
		})
	}, reflect.TypeOf(""))
}

func dedupeNonEmpty(names []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
