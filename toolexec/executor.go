package toolexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	fccache "github.com/aicc2025/ai-native-callcenter/cache"
	"github.com/aicc2025/ai-native-callcenter/flowerrors"
	"github.com/aicc2025/ai-native-callcenter/telemetry"
)

// Executor implements execute(tool_name, arguments, context) -> result
// (spec §4.9), in the order: unknown-tool check, rate limit, result cache
// probe, timed execution, success-path caching.
type Executor struct {
	registry *Registry
	cache    *fccache.Facade
	log      telemetry.Logger
	metrics  telemetry.Metrics
}

// NewExecutor builds a Tool Executor over registry and cache.
func NewExecutor(registry *Registry, cache *fccache.Facade, log telemetry.Logger, metrics telemetry.Metrics) *Executor {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Executor{registry: registry, cache: cache, log: log, metrics: metrics}
}

// Execute dispatches toolName with arguments.
func (e *Executor) Execute(ctx context.Context, toolName string, arguments map[string]any) (any, error) {
	start := time.Now()
	tool, ok := e.registry.Lookup(toolName)
	if !ok {
		return nil, flowerrors.NewNotFoundError("tool", toolName)
	}

	if err := e.validateArguments(toolName, tool, arguments); err != nil {
		return nil, err
	}

	if tool.RateLimit != nil {
		if err := e.enforceRateLimit(ctx, tool, arguments); err != nil {
			return nil, err
		}
	}

	canonical, err := canonicalJSON(arguments)
	if err != nil {
		return nil, flowerrors.NewUpstreamError("tool_args", err)
	}

	var cacheKey string
	if tool.CacheTTL > 0 {
		cacheKey = fccache.ToolResultKey(toolName, canonical)
		var cached any
		raw, ok, err := e.cache.Store().Get(ctx, cacheKey)
		if err == nil && ok {
			if unmarshalErr := json.Unmarshal(raw, &cached); unmarshalErr == nil {
				e.metrics.IncCounter("tool.cache_hit", 1, "tool", toolName)
				return cached, nil
			}
		}
	}

	result, err := e.runWithTimeout(ctx, tool, arguments)
	e.metrics.RecordTimer("tool.latency", time.Since(start), "tool", toolName)
	if err != nil {
		return nil, err
	}

	if tool.CacheTTL > 0 {
		if data, marshalErr := json.Marshal(result); marshalErr == nil {
			_ = e.cache.Store().Set(ctx, cacheKey, data, tool.CacheTTL)
		}
	}
	return result, nil
}

func (e *Executor) runWithTimeout(ctx context.Context, tool *Tool, arguments map[string]any) (any, error) {
	timeout := tool.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := tool.Callable(callCtx, arguments)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, flowerrors.NewUpstreamError("tool:"+tool.Name, o.err)
		}
		return o.result, nil
	case <-callCtx.Done():
		return nil, &flowerrors.TimeoutError{Tool: tool.Name, Seconds: timeout.Seconds()}
	}
}

func (e *Executor) enforceRateLimit(ctx context.Context, tool *Tool, arguments map[string]any) error {
	policy := tool.RateLimit
	identifier, ok := arguments[policy.IdentifierField]
	if !ok {
		return nil
	}
	idStr := fmt.Sprintf("%v", identifier)
	key := fccache.ToolRateLimitKey(tool.Name, idStr)

	count, err := e.cache.IncrementCounter(ctx, key, policy.Window)
	if err != nil {
		// Best-effort: availability over strict enforcement (spec §4.9).
		e.log.Warn(ctx, "rate limit counter unavailable, proceeding without enforcement", "tool", tool.Name, "error", err.Error())
		return nil
	}
	if count > int64(policy.MaxCalls) {
		return &flowerrors.RateLimitError{
			Tool:       tool.Name,
			Identifier: idStr,
			MaxCalls:   policy.MaxCalls,
			Window:     policy.Window.String(),
		}
	}
	return nil
}

func (e *Executor) validateArguments(toolName string, tool *Tool, arguments map[string]any) error {
	if tool.Schema == nil {
		return nil
	}
	compiled, ok := e.registry.CompiledSchema(toolName)
	if !ok {
		return nil
	}
	if err := compiled.Validate(any(arguments)); err != nil {
		return flowerrors.NewValidationError(tool.Name, 0, "arguments", err.Error())
	}
	return nil
}

// canonicalJSON marshals arguments with lexically sorted keys so that the
// result cache key is invariant under argument-key permutation (spec §4.9,
// §8 invariant 8).
func canonicalJSON(arguments map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(arguments))
	for k := range arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(arguments[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
