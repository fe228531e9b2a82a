package guideline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesScopeGlobalAlwaysApplies(t *testing.T) {
	t.Parallel()
	d := &Definition{Scope: ScopeGlobal}
	assert.True(t, d.MatchesScope("", ""))
	assert.True(t, d.MatchesScope("j1", "s1"))
}

func TestMatchesScopeJourneyRequiresMatchingJourneyID(t *testing.T) {
	t.Parallel()
	d := &Definition{Scope: ScopeJourney, JourneyID: "j1"}
	assert.True(t, d.MatchesScope("j1", "any-state"))
	assert.False(t, d.MatchesScope("j2", "any-state"))
	assert.False(t, d.MatchesScope("", ""))
}

func TestMatchesScopeStateRequiresBothJourneyAndState(t *testing.T) {
	t.Parallel()
	d := &Definition{Scope: ScopeState, JourneyID: "j1", StateName: "s1"}
	assert.True(t, d.MatchesScope("j1", "s1"))
	assert.False(t, d.MatchesScope("j1", "s2"))
	assert.False(t, d.MatchesScope("j2", "s1"))
}

func TestPriorityScoreOrdersStateAboveJourneyAboveGlobal(t *testing.T) {
	t.Parallel()
	state := &Definition{Scope: ScopeState, Priority: 5}
	journey := &Definition{Scope: ScopeJourney, Priority: 5}
	global := &Definition{Scope: ScopeGlobal, Priority: 5}

	assert.Greater(t, state.PriorityScore(), journey.PriorityScore())
	assert.Greater(t, journey.PriorityScore(), global.PriorityScore())
}

func TestSortByPriorityDescBreaksTiesByName(t *testing.T) {
	t.Parallel()

	defs := []*Definition{
		{Name: "zeta", Scope: ScopeGlobal, Priority: 10},
		{Name: "alpha", Scope: ScopeGlobal, Priority: 10},
		{Name: "high", Scope: ScopeState, Priority: 0},
	}
	SortByPriorityDesc(defs)

	require.Len(t, defs, 3)
	assert.Equal(t, "high", defs[0].Name, "STATE scope outranks equal-numeric-priority GLOBAL entries")
	assert.Equal(t, "alpha", defs[1].Name, "ties broken by ascending name")
	assert.Equal(t, "zeta", defs[2].Name)
}

func TestDefinitionValidateEnforcesScopeFieldRequirements(t *testing.T) {
	t.Parallel()

	base := func() *Definition {
		return &Definition{Name: "n", Condition: "c", Action: "a"}
	}

	global := base()
	global.Scope = ScopeGlobal
	assert.NoError(t, global.Validate("f.yaml", 0))

	globalWithJourney := base()
	globalWithJourney.Scope = ScopeGlobal
	globalWithJourney.JourneyID = "j1"
	assert.Error(t, globalWithJourney.Validate("f.yaml", 0))

	journeyMissingID := base()
	journeyMissingID.Scope = ScopeJourney
	assert.Error(t, journeyMissingID.Validate("f.yaml", 0))

	journeyOK := base()
	journeyOK.Scope = ScopeJourney
	journeyOK.JourneyID = "j1"
	assert.NoError(t, journeyOK.Validate("f.yaml", 0))

	stateMissingName := base()
	stateMissingName.Scope = ScopeState
	stateMissingName.JourneyID = "j1"
	assert.Error(t, stateMissingName.Validate("f.yaml", 0))

	stateOK := base()
	stateOK.Scope = ScopeState
	stateOK.JourneyID = "j1"
	stateOK.StateName = "s1"
	assert.NoError(t, stateOK.Validate("f.yaml", 0))
}

func TestDefinitionValidateRejectsMissingRequiredProse(t *testing.T) {
	t.Parallel()

	d := &Definition{Scope: ScopeGlobal}
	assert.Error(t, d.Validate("f.yaml", 0), "empty name must fail")

	d = &Definition{Name: "n", Scope: ScopeGlobal}
	assert.Error(t, d.Validate("f.yaml", 0), "empty condition must fail")

	d = &Definition{Name: "n", Condition: "c", Scope: ScopeGlobal}
	assert.Error(t, d.Validate("f.yaml", 0), "empty action must fail")
}
