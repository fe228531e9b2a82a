package guideline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fccache "github.com/aicc2025/ai-native-callcenter/cache"
	"github.com/aicc2025/ai-native-callcenter/telemetry"
)

type fakeGuidelineDurableStore struct {
	mu   sync.Mutex
	defs map[string]*Definition
}

func newFakeGuidelineDurableStore() *fakeGuidelineDurableStore {
	return &fakeGuidelineDurableStore{defs: map[string]*Definition{}}
}

func (f *fakeGuidelineDurableStore) UpsertGuideline(_ context.Context, def *Definition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defs[def.ID] = def
	return nil
}

func (f *fakeGuidelineDurableStore) GetGuideline(_ context.Context, id string) (*Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.defs[id], nil
}

func (f *fakeGuidelineDurableStore) GetAllGuidelines(_ context.Context) ([]*Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Definition, 0, len(f.defs))
	for _, d := range f.defs {
		out = append(out, d)
	}
	return out, nil
}

func newTestGuidelineStore(t *testing.T, defs ...*Definition) (*Store, *fakeGuidelineDurableStore) {
	t.Helper()
	durable := newFakeGuidelineDurableStore()
	store := NewStore(durable, fccache.New(fccache.NewMemoryStore(), telemetry.NewNoopLogger()))
	for _, d := range defs {
		require.NoError(t, store.UpsertDefinition(context.Background(), d))
	}
	require.NoError(t, store.LoadAll(context.Background()))
	return store, durable
}

func TestGuidelineStoreGetGuidelinesByScopeFiltersAndSorts(t *testing.T) {
	t.Parallel()

	stateG := &Definition{ID: "g1", Scope: ScopeState, JourneyID: "j1", StateName: "s1", Name: "state-rule", Condition: "c", Action: "a", Enabled: true, Priority: 0}
	journeyG := &Definition{ID: "g2", Scope: ScopeJourney, JourneyID: "j1", Name: "journey-rule", Condition: "c", Action: "a", Enabled: true, Priority: 0}
	globalG := &Definition{ID: "g3", Scope: ScopeGlobal, Name: "global-rule", Condition: "c", Action: "a", Enabled: true, Priority: 0}
	disabledG := &Definition{ID: "g4", Scope: ScopeGlobal, Name: "disabled-rule", Condition: "c", Action: "a", Enabled: false}
	otherJourneyG := &Definition{ID: "g5", Scope: ScopeJourney, JourneyID: "other", Name: "other-journey-rule", Condition: "c", Action: "a", Enabled: true}

	store, _ := newTestGuidelineStore(t, stateG, journeyG, globalG, disabledG, otherJourneyG)

	out := store.GetGuidelinesByScope("j1", "s1")
	require.Len(t, out, 3)
	assert.Equal(t, "state-rule", out[0].Name)
	assert.Equal(t, "journey-rule", out[1].Name)
	assert.Equal(t, "global-rule", out[2].Name)
}

func TestGuidelineStoreGetCandidatesByKeywordsUnionsPostings(t *testing.T) {
	t.Parallel()

	g1 := &Definition{ID: "g1", Scope: ScopeGlobal, Name: "billing", Condition: "c", Action: "a", Enabled: true, Keywords: []string{"Billing", "invoice"}}
	g2 := &Definition{ID: "g2", Scope: ScopeGlobal, Name: "flights", Condition: "c", Action: "a", Enabled: true, Keywords: []string{"flight", "reschedule"}}
	g3 := &Definition{ID: "g3", Scope: ScopeGlobal, Name: "unrelated", Condition: "c", Action: "a", Enabled: true, Keywords: []string{"weather"}}

	store, _ := newTestGuidelineStore(t, g1, g2, g3)

	out := store.GetCandidatesByKeywords([]string{"billing", "flight"})
	ids := map[string]bool{}
	for _, d := range out {
		ids[d.ID] = true
	}
	assert.True(t, ids["g1"])
	assert.True(t, ids["g2"])
	assert.False(t, ids["g3"])
}

func TestGuidelineStoreKeywordMatchIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	g1 := &Definition{ID: "g1", Scope: ScopeGlobal, Name: "billing", Condition: "c", Action: "a", Enabled: true, Keywords: []string{"Billing"}}
	store, _ := newTestGuidelineStore(t, g1)

	out := store.GetCandidatesByKeywords([]string{"billing"})
	require.Len(t, out, 1)
	assert.Equal(t, "g1", out[0].ID)
}

func TestGuidelineStoreGetGuideline(t *testing.T) {
	t.Parallel()

	g1 := &Definition{ID: "g1", Scope: ScopeGlobal, Name: "rule", Condition: "c", Action: "a", Enabled: true}
	store, _ := newTestGuidelineStore(t, g1)

	got, ok := store.GetGuideline("g1")
	require.True(t, ok)
	assert.Equal(t, "rule", got.Name)

	_, ok = store.GetGuideline("missing")
	assert.False(t, ok)
}
