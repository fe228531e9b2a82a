// Package model defines the provider-agnostic chat completion types used by
// the Journey Matcher, Guideline Matcher, and Response Validator. Concrete
// adapters under modelprovider/ translate these into calls against a
// specific LLM provider SDK.
package model

import (
	"context"
	"errors"

	"github.com/aicc2025/ai-native-callcenter/flowerrors"
)

type (
	// ConversationRole identifies the speaker of a Message.
	ConversationRole string

	// Part is a content block within a Message.
	Part interface{ isPart() }

	// TextPart is plain text content.
	TextPart struct{ Text string }

	// ToolUsePart declares a tool invocation requested by the assistant.
	ToolUsePart struct {
		ID    string
		Name  string
		Input any
	}

	// ToolResultPart carries a tool result back to the model.
	ToolResultPart struct {
		ToolUseID string
		Content   any
		IsError   bool
	}

	// Message is a single chat message.
	Message struct {
		Role  ConversationRole
		Parts []Part
	}

	// ToolDefinition describes a callable tool exposed to the model.
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema any
	}

	// ResponseFormat constrains the model to emit a JSON object conforming
	// to Schema. Nil means free-form text.
	ResponseFormat struct {
		Name   string
		Schema any
	}

	// Request captures inputs for a single model invocation. A single turn
	// issues up to five of these sequentially (activation, transition,
	// guideline batch, validation, auto-fix); see spec.md §5.
	Request struct {
		Model          string
		Messages       []*Message
		Temperature    float32
		Tools          []*ToolDefinition
		MaxTokens      int
		ResponseFormat *ResponseFormat
	}

	// TokenUsage reports token consumption for a Request.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
	}

	// ToolCall is a tool invocation requested by the model in a Response.
	ToolCall struct {
		ID      string
		Name    string
		Payload []byte // JSON arguments as returned by the provider
	}

	// Response is the result of a non-streaming invocation.
	Response struct {
		Text       string // concatenated text parts, convenience accessor
		ToolCalls  []ToolCall
		Usage      TokenUsage
		StopReason string
	}

	// Client is the provider-agnostic model client used by every structured
	// call site in the flow control core.
	Client interface {
		Complete(ctx context.Context, req *Request) (*Response, error)
	}
)

const (
	RoleSystem    ConversationRole = "system"
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

func (TextPart) isPart()       {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting after exhausting any configured retries.
var ErrRateLimited = errors.New("model: rate limited")

// System builds a single-part system message.
func System(text string) *Message {
	return &Message{Role: RoleSystem, Parts: []Part{TextPart{Text: text}}}
}

// User builds a single-part user message.
func User(text string) *Message {
	return &Message{Role: RoleUser, Parts: []Part{TextPart{Text: text}}}
}

// CompleteStructured issues req through client and decodes the response text
// strictly into out, rejecting unknown fields and type mismatches. Any
// client failure or decode failure is wrapped as a flowerrors.UpstreamError
// so call sites can apply the conservative default for that operation.
func CompleteStructured(ctx context.Context, client Client, req *Request, out any) error {
	if client == nil {
		return flowerrors.NewUpstreamError("model", errors.New("no model client configured"))
	}
	resp, err := client.Complete(ctx, req)
	if err != nil {
		return flowerrors.NewUpstreamError("model", err)
	}
	if err := DecodeStrict([]byte(resp.Text), out); err != nil {
		return flowerrors.NewUpstreamError("model", err)
	}
	return nil
}
