// Package openai adapts github.com/openai/openai-go into the flow control
// core's provider-agnostic model.Client, mirroring the shape of
// modelprovider/anthropic so the two are interchangeable at the call site
// (spec.md §6: "substitutability is required").
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	fcmodel "github.com/aicc2025/ai-native-callcenter/model"
)

type (
	// ChatService captures the subset of the OpenAI SDK used by the adapter.
	ChatService interface {
		New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	}

	// Client implements model.Client via the OpenAI Chat Completions API.
	Client struct {
		chat         ChatService
		defaultModel string
	}
)

// New builds an OpenAI-backed model.Client.
func New(chat ChatService, defaultModel string) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai chat client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{chat: chat, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP client
// authenticated with apiKey.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Chat.Completions, defaultModel)
}

// Complete renders a chat completion and translates it back into model.Response.
func (c *Client) Complete(ctx context.Context, req *fcmodel.Request) (*fcmodel.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", fcmodel.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(resp)
}

func (c *Client) prepareRequest(req *fcmodel.Request) (*openai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	messages, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	params := &openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.ResponseFormat != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}
	if len(req.Tools) > 0 {
		params.Tools = encodeTools(req.Tools)
	}
	return params, nil
}

func encodeMessages(msgs []*fcmodel.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		text := textOf(m)
		switch m.Role {
		case fcmodel.RoleSystem:
			out = append(out, openai.SystemMessage(text))
		case fcmodel.RoleUser:
			out = append(out, openai.UserMessage(text))
		case fcmodel.RoleAssistant:
			out = append(out, openai.AssistantMessage(text))
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}
	return out, nil
}

func textOf(m *fcmodel.Message) string {
	var text string
	for _, p := range m.Parts {
		if v, ok := p.(fcmodel.TextPart); ok {
			text += v.Text
		}
	}
	return text
}

func encodeTools(defs []*fcmodel.ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		params := map[string]any{}
		if m, ok := def.InputSchema.(map[string]any); ok {
			params = m
		}
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  params,
		}))
	}
	return out
}

func translateResponse(resp *openai.ChatCompletion) (*fcmodel.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response had no choices")
	}
	choice := resp.Choices[0]
	out := &fcmodel.Response{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: fcmodel.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, fcmodel.ToolCall{
			ID:      tc.ID,
			Name:    tc.Function.Name,
			Payload: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
