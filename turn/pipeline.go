// Package turn implements the Pipeline: the single cooperative-task entry
// point that ties the Journey Engine, Guideline Engine, model client, and
// Tool Executor together into one conversational turn (spec §2, §5).
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	fccache "github.com/aicc2025/ai-native-callcenter/cache"
	"github.com/aicc2025/ai-native-callcenter/guideline"
	"github.com/aicc2025/ai-native-callcenter/journey"
	fcmodel "github.com/aicc2025/ai-native-callcenter/model"
	"github.com/aicc2025/ai-native-callcenter/telemetry"
	"github.com/aicc2025/ai-native-callcenter/toolexec"
)

// MaxToolRounds bounds the reply/tool-dispatch loop so a model that keeps
// requesting tools can never hang a turn indefinitely (spec §5 step 4).
const MaxToolRounds = 4

// Result is everything ProcessTurn reports back about one turn.
type Result struct {
	Reply              string
	JourneyID          string
	State              string
	IsNewJourney       bool
	JourneyActivated   bool
	TransitionOccurred bool
	GuidelineMatches   []guideline.Match
	Validation         guideline.ValidationResult
}

// Pipeline wires the engines for one turn. It holds no per-session state;
// everything session-scoped lives in the journey.Context durable record.
type Pipeline struct {
	journeyEngine    *journey.Engine
	journeyStore     *journey.Store
	guidelineMatcher *guideline.Matcher
	guidelineStore   *guideline.Store
	validator        *guideline.Validator
	toolRegistry     *toolexec.Registry
	toolExecutor     *toolexec.Executor
	client           fcmodel.Client
	cache            *fccache.Facade
	log              telemetry.Logger
	metrics          telemetry.Metrics
}

// New builds a Pipeline from its collaborators.
func New(
	journeyEngine *journey.Engine,
	journeyStore *journey.Store,
	guidelineMatcher *guideline.Matcher,
	guidelineStore *guideline.Store,
	validator *guideline.Validator,
	toolRegistry *toolexec.Registry,
	toolExecutor *toolexec.Executor,
	client fcmodel.Client,
	cache *fccache.Facade,
	log telemetry.Logger,
	metrics telemetry.Metrics,
) *Pipeline {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Pipeline{
		journeyEngine:    journeyEngine,
		journeyStore:     journeyStore,
		guidelineMatcher: guidelineMatcher,
		guidelineStore:   guidelineStore,
		validator:        validator,
		toolRegistry:     toolRegistry,
		toolExecutor:     toolExecutor,
		client:           client,
		cache:            cache,
		log:              log,
		metrics:          metrics,
	}
}

// ProcessTurn runs one full conversational turn for sessionID (spec §5):
// advance the journey, match guidelines, generate a reply (dispatching any
// requested tool calls concurrently), then validate the reply before
// returning it.
func (p *Pipeline) ProcessTurn(ctx context.Context, sessionID, utterance string, hints map[string]any) (*Result, error) {
	start := time.Now()

	journeyCtx, state, jmeta, err := p.journeyEngine.ProcessMessage(ctx, sessionID, utterance, hints)
	if err != nil {
		return nil, err
	}

	res := &Result{
		IsNewJourney:       jmeta.IsNewJourney,
		JourneyActivated:   jmeta.JourneyActivated,
		TransitionOccurred: jmeta.TransitionOccurred,
	}

	var journeyID, stateName string
	var variables map[string]any
	if journeyCtx != nil {
		journeyID = journeyCtx.JourneyID
		res.JourneyID = journeyID
		res.State = journeyCtx.CurrentState
		variables = journeyCtx.Variables
	}
	if state != nil {
		stateName = state.Name
	}

	matches, err := p.guidelineMatcher.Match(ctx, utterance, journeyID, stateName, variables)
	if err != nil {
		return nil, err
	}
	res.GuidelineMatches = matches

	var journeyDef *journey.Definition
	if journeyID != "" {
		journeyDef, err = p.journeyStore.GetJourney(ctx, journeyID)
		if err != nil {
			return nil, err
		}
	}
	systemPrompt := p.buildSystemPrompt(state, journeyDef, matches)
	tools := p.availableTools(state)

	reply, err := p.generateReply(ctx, systemPrompt, utterance, tools)
	if err != nil {
		return nil, err
	}

	guidelines := make([]*guideline.Definition, len(matches))
	for i, m := range matches {
		guidelines[i] = m.Guideline
	}
	var journeyIDPtr *string
	if journeyID != "" {
		journeyIDPtr = &journeyID
	}
	validation := p.validator.ValidateResponse(ctx, reply, guidelines, sessionID, journeyIDPtr)
	res.Validation = validation
	if validation.FixedResponse != nil {
		reply = *validation.FixedResponse
	}
	res.Reply = reply

	p.metrics.RecordTimer("turn.latency", time.Since(start), "journey_id", journeyID)
	return res, nil
}

func (p *Pipeline) buildSystemPrompt(state *journey.State, journeyDef *journey.Definition, matches []guideline.Match) string {
	var sb strings.Builder
	sb.WriteString("You are an AI voice agent for a call center. Respond naturally and helpfully.\n\n")
	if journeyDef != nil && state != nil {
		sb.WriteString(journey.GetJourneyGuidance(journeyDef, state))
		sb.WriteString("\n")
	}
	if len(matches) > 0 {
		sb.WriteString("Active guidelines, highest priority first:\n")
		for _, m := range matches {
			fmt.Fprintf(&sb, "- %s: %s\n", m.Guideline.Name, m.Guideline.Action)
		}
	}
	return sb.String()
}

func (p *Pipeline) availableTools(state *journey.State) []*fcmodel.ToolDefinition {
	if state == nil || p.toolRegistry == nil {
		return nil
	}
	var defs []*fcmodel.ToolDefinition
	for _, name := range state.Tools {
		t, ok := p.toolRegistry.Lookup(name)
		if !ok {
			continue
		}
		defs = append(defs, &fcmodel.ToolDefinition{Name: t.Name, InputSchema: t.Schema})
	}
	return defs
}

// generateReply runs the reply/tool-dispatch loop: issue a model call, and
// if it requests tool calls, execute every requested call concurrently
// (spec §5 step 4's "tool calls within a turn run as a concurrent barrier,
// not sequentially") before feeding the results back for another round.
func (p *Pipeline) generateReply(ctx context.Context, systemPrompt, utterance string, tools []*fcmodel.ToolDefinition) (string, error) {
	messages := []*fcmodel.Message{
		fcmodel.System(systemPrompt),
		fcmodel.User(utterance),
	}

	for round := 0; round < MaxToolRounds; round++ {
		req := &fcmodel.Request{
			Messages: messages,
			Tools:    tools,
		}
		resp, err := p.client.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}

		assistantParts := make([]fcmodel.Part, 0, len(resp.ToolCalls)+1)
		if resp.Text != "" {
			assistantParts = append(assistantParts, fcmodel.TextPart{Text: resp.Text})
		}
		for _, tc := range resp.ToolCalls {
			assistantParts = append(assistantParts, fcmodel.ToolUsePart{ID: tc.ID, Name: tc.Name, Input: json.RawMessage(tc.Payload)})
		}
		messages = append(messages, &fcmodel.Message{Role: fcmodel.RoleAssistant, Parts: assistantParts})

		results := p.dispatchToolCalls(ctx, resp.ToolCalls)
		resultParts := make([]fcmodel.Part, 0, len(results))
		for _, r := range results {
			resultParts = append(resultParts, fcmodel.ToolResultPart{ToolUseID: r.id, Content: r.content, IsError: r.isError})
		}
		messages = append(messages, &fcmodel.Message{Role: fcmodel.RoleUser, Parts: resultParts})
	}

	p.log.Warn(ctx, "tool dispatch loop exhausted max rounds without a final reply", "max_rounds", MaxToolRounds)
	return "", fmt.Errorf("turn: exceeded %d tool-dispatch rounds", MaxToolRounds)
}

type toolCallResult struct {
	id      string
	content any
	isError bool
}

// dispatchToolCalls executes every call in parallel and waits for all of
// them, preserving calls' original order in the returned slice so the
// tool_result messages line up with their tool_use counterparts.
func (p *Pipeline) dispatchToolCalls(ctx context.Context, calls []fcmodel.ToolCall) []toolCallResult {
	results := make([]toolCallResult, len(calls))
	done := make(chan struct{}, len(calls))

	for i, call := range calls {
		go func(i int, call fcmodel.ToolCall) {
			defer func() { done <- struct{}{} }()
			var args map[string]any
			if err := json.Unmarshal(call.Payload, &args); err != nil {
				results[i] = toolCallResult{id: call.ID, content: fmt.Sprintf("invalid tool arguments: %s", err), isError: true}
				return
			}
			result, err := p.toolExecutor.Execute(ctx, call.Name, args)
			if err != nil {
				p.log.Warn(ctx, "tool execution failed", "tool", call.Name, "error", err.Error())
				results[i] = toolCallResult{id: call.ID, content: err.Error(), isError: true}
				return
			}
			results[i] = toolCallResult{id: call.ID, content: result}
		}(i, call)
	}

	for range calls {
		<-done
	}
	return results
}
