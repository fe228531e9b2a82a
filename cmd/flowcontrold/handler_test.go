package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fccache "github.com/aicc2025/ai-native-callcenter/cache"
	"github.com/aicc2025/ai-native-callcenter/guideline"
	"github.com/aicc2025/ai-native-callcenter/journey"
	fcmodel "github.com/aicc2025/ai-native-callcenter/model"
	"github.com/aicc2025/ai-native-callcenter/telemetry"
	"github.com/aicc2025/ai-native-callcenter/turn"
)

type fakeJourneyDurableStore struct{}

func (fakeJourneyDurableStore) UpsertJourney(context.Context, *journey.Definition) error { return nil }
func (fakeJourneyDurableStore) GetJourney(context.Context, string) (*journey.Definition, error) {
	return nil, nil
}
func (fakeJourneyDurableStore) GetJourneyByName(context.Context, string) (*journey.Definition, error) {
	return nil, nil
}
func (fakeJourneyDurableStore) GetAllJourneys(context.Context) ([]*journey.Definition, error) {
	return nil, nil
}
func (fakeJourneyDurableStore) InsertContext(context.Context, *journey.Context) error { return nil }
func (fakeJourneyDurableStore) UpdateContext(context.Context, *journey.Context) error { return nil }
func (fakeJourneyDurableStore) GetActiveContext(context.Context, string) (*journey.Context, error) {
	return nil, nil
}

type fakeGuidelineDurableStore struct{}

func (fakeGuidelineDurableStore) UpsertGuideline(context.Context, *guideline.Definition) error {
	return nil
}
func (fakeGuidelineDurableStore) GetGuideline(context.Context, string) (*guideline.Definition, error) {
	return nil, nil
}
func (fakeGuidelineDurableStore) GetAllGuidelines(context.Context) ([]*guideline.Definition, error) {
	return nil, nil
}

type noopAuditStore struct{}

func (noopAuditStore) InsertAuditRecord(context.Context, *guideline.AuditRecord) error { return nil }

type fakeReplyClient struct{}

func (fakeReplyClient) Complete(context.Context, *fcmodel.Request) (*fcmodel.Response, error) {
	return &fcmodel.Response{Text: "hello from the call center"}, nil
}

func newTestPipeline(t *testing.T) *turn.Pipeline {
	t.Helper()
	cache := fccache.New(fccache.NewMemoryStore(), telemetry.NewNoopLogger())

	journeyStore := journey.NewStore(fakeJourneyDurableStore{}, cache)
	journeyMatcher := journey.NewMatcher(fakeReplyClient{}, cache, journeyStore, telemetry.NewNoopLogger())
	journeyEngine := journey.NewEngine(journeyStore, journeyMatcher, telemetry.NewNoopLogger(), telemetry.NewNoopMetrics())

	guidelineStore := guideline.NewStore(fakeGuidelineDurableStore{}, cache)
	require.NoError(t, guidelineStore.LoadAll(context.Background()))
	guidelineMatcher := guideline.NewMatcher(fakeReplyClient{}, guidelineStore, telemetry.NewNoopLogger())
	validator := guideline.NewValidator(fakeReplyClient{}, noopAuditStore{}, telemetry.NewNoopLogger())

	return turn.New(journeyEngine, journeyStore, guidelineMatcher, guidelineStore, validator, nil, nil, fakeReplyClient{}, cache, telemetry.NewNoopLogger(), telemetry.NewNoopMetrics())
}

func TestTurnHandlerRejectsNonPostMethod(t *testing.T) {
	t.Parallel()

	h := newTurnHandler(newTestPipeline(t), telemetry.NewNoopLogger())
	req := httptest.NewRequest(http.MethodGet, "/turn", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTurnHandlerRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	h := newTurnHandler(newTestPipeline(t), telemetry.NewNoopLogger())
	req := httptest.NewRequest(http.MethodPost, "/turn", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTurnHandlerRejectsMissingFields(t *testing.T) {
	t.Parallel()

	h := newTurnHandler(newTestPipeline(t), telemetry.NewNoopLogger())
	body, err := json.Marshal(turnRequest{SessionID: "sess-1"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/turn", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTurnHandlerReturnsPipelineResult(t *testing.T) {
	t.Parallel()

	h := newTurnHandler(newTestPipeline(t), telemetry.NewNoopLogger())
	body, err := json.Marshal(turnRequest{SessionID: "sess-1", Utterance: "what's my balance"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/turn", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp turnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hello from the call center", resp.Reply)
	assert.True(t, resp.Valid)
}
