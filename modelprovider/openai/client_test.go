package openai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fcmodel "github.com/aicc2025/ai-native-callcenter/model"
)

// newTestClient leaves chat nil: every test here exercises prepareRequest
// and the standalone helpers, none of which touch the underlying ChatService.
func newTestClient() *Client {
	return &Client{defaultModel: "gpt-4o"}
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	t.Parallel()
	_, err := New(nil, "gpt-4o")
	assert.Error(t, err)
}

func TestPrepareRequestDefaultsModel(t *testing.T) {
	t.Parallel()

	c := newTestClient()
	params, err := c.prepareRequest(&fcmodel.Request{Messages: []*fcmodel.Message{fcmodel.User("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", params.Model)
}

func TestPrepareRequestUsesRequestModelOverride(t *testing.T) {
	t.Parallel()

	c := newTestClient()
	params, err := c.prepareRequest(&fcmodel.Request{Model: "gpt-4o-mini", Messages: []*fcmodel.Message{fcmodel.User("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", params.Model)
}

func TestPrepareRequestRejectsEmptyMessages(t *testing.T) {
	t.Parallel()

	c := newTestClient()
	_, err := c.prepareRequest(&fcmodel.Request{})
	assert.Error(t, err)
}

func TestPrepareRequestSetsJSONObjectResponseFormat(t *testing.T) {
	t.Parallel()

	c := newTestClient()
	params, err := c.prepareRequest(&fcmodel.Request{
		Messages:       []*fcmodel.Message{fcmodel.User("hi")},
		ResponseFormat: &fcmodel.ResponseFormat{Name: "verdict"},
	})
	require.NoError(t, err)
	require.NotNil(t, params.ResponseFormat.OfJSONObject)
}

func TestEncodeMessagesRejectsUnsupportedRole(t *testing.T) {
	t.Parallel()

	_, err := encodeMessages([]*fcmodel.Message{{Role: fcmodel.ConversationRole("tool"), Parts: []fcmodel.Part{fcmodel.TextPart{Text: "x"}}}})
	assert.Error(t, err)
}

func TestTextOfConcatenatesTextParts(t *testing.T) {
	t.Parallel()

	m := &fcmodel.Message{Role: fcmodel.RoleUser, Parts: []fcmodel.Part{
		fcmodel.TextPart{Text: "hello "},
		fcmodel.TextPart{Text: "world"},
	}}
	assert.Equal(t, "hello world", textOf(m))
}

func TestIsRateLimitedFalseForUnrelatedError(t *testing.T) {
	t.Parallel()
	assert.False(t, isRateLimited(errors.New("some other failure")))
}
