// Package bedrock adapts the AWS Bedrock Converse API into model.Client,
// trimmed from the teacher's features/model/bedrock adapter: no streaming,
// no prompt-cache points, no reasoning/thinking blocks, no ledger replay —
// this core issues a single non-streaming completion per call site.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	fcmodel "github.com/aicc2025/ai-native-callcenter/model"
)

// RuntimeClient is the subset of the Bedrock runtime client used by the
// adapter, satisfied by *bedrockruntime.Client or a test double.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements model.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	maxTokens    int
	temperature  float32
}

// New builds a Bedrock-backed model.Client.
func New(runtime RuntimeClient, defaultModel string, maxTokens int) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Client{runtime: runtime, defaultModel: defaultModel, maxTokens: maxTokens}, nil
}

// Complete issues a Converse request and translates the response.
func (c *Client) Complete(ctx context.Context, req *fcmodel.Request) (*fcmodel.Response, error) {
	messages, system, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	toolConfig, err := encodeTools(req.Tools)
	if err != nil {
		return nil, err
	}

	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = c.temperature
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
		System:   system,
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(maxTokens)),
			Temperature: aws.Float32(temp),
		},
		ToolConfig: toolConfig,
	}

	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", fcmodel.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}
	return translateResponse(output)
}

func encodeMessages(msgs []*fcmodel.Message) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	var system []brtypes.SystemContentBlock
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == fcmodel.RoleSystem {
			for _, p := range m.Parts {
				if v, ok := p.(fcmodel.TextPart); ok && v.Text != "" {
					system = append(system, &brtypes.SystemContentBlockMemberText{Value: v.Text})
				}
			}
			continue
		}
		blocks := make([]brtypes.ContentBlock, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch v := part.(type) {
			case fcmodel.TextPart:
				if v.Text != "" {
					blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: v.Text})
				}
			case fcmodel.ToolUsePart:
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(v.ID),
					Name:      aws.String(v.Name),
					Input:     lazyDocument(v.Input),
				}})
			case fcmodel.ToolResultPart:
				blocks = append(blocks, encodeToolResult(v))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		var role brtypes.ConversationRole
		switch m.Role {
		case fcmodel.RoleUser:
			role = brtypes.ConversationRoleUser
		case fcmodel.RoleAssistant:
			role = brtypes.ConversationRoleAssistant
		default:
			return nil, nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeToolResult(v fcmodel.ToolResultPart) brtypes.ContentBlock {
	tr := brtypes.ToolResultBlock{ToolUseId: aws.String(v.ToolUseID)}
	if v.IsError {
		tr.Status = brtypes.ToolResultStatusError
	}
	switch c := v.Content.(type) {
	case string:
		tr.Content = []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: c}}
	default:
		tr.Content = []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberJson{Value: lazyDocument(c)}}
	}
	return &brtypes.ContentBlockMemberToolResult{Value: tr}
}

func encodeTools(defs []*fcmodel.ToolDefinition) (*brtypes.ToolConfiguration, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	tools := make([]brtypes.Tool, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		tools = append(tools, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(def.Name),
			Description: aws.String(def.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: lazyDocument(def.InputSchema)},
		}})
	}
	if len(tools) == 0 {
		return nil, nil
	}
	return &brtypes.ToolConfiguration{Tools: tools}, nil
}

func lazyDocument(v any) document.Interface {
	if v == nil {
		v = map[string]any{}
	}
	return document.NewLazyDocument(v)
}

func translateResponse(output *bedrockruntime.ConverseOutput) (*fcmodel.Response, error) {
	resp := &fcmodel.Response{StopReason: string(output.StopReason)}
	msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return resp, nil
	}
	var text string
	for _, block := range msg.Value.Content {
		switch v := block.(type) {
		case *brtypes.ContentBlockMemberText:
			text += v.Value
		case *brtypes.ContentBlockMemberToolUse:
			payload := decodeDocument(v.Value.Input)
			resp.ToolCalls = append(resp.ToolCalls, fcmodel.ToolCall{
				ID:      aws.ToString(v.Value.ToolUseId),
				Name:    aws.ToString(v.Value.Name),
				Payload: payload,
			})
		}
	}
	resp.Text = text
	if output.Usage != nil {
		resp.Usage = fcmodel.TokenUsage{
			InputTokens:  int(aws.ToInt32(output.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
		}
	}
	return resp, nil
}

func decodeDocument(doc document.Interface) json.RawMessage {
	if doc == nil {
		return nil
	}
	var raw json.RawMessage
	if err := doc.UnmarshalSmithyDocument(&raw); err != nil {
		return nil
	}
	return raw
}

func isRateLimited(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ThrottlingException"
	}
	return false
}
