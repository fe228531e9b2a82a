// Package toolexec implements the Tool Executor (spec §4.9): a name-keyed
// registry of callables frozen at startup (spec §9 "decorator-based tool
// registration" redesigned as explicit registration, not import-time side
// effects), and an Executor that enforces rate limiting, result caching,
// and a hard per-call timeout around dispatch.
package toolexec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Callable is a registered tool's implementation.
type Callable func(ctx context.Context, arguments map[string]any) (any, error)

// RateLimitPolicy bounds calls per identifier over a fixed window that
// starts at the identifier's first counted call (spec §4.9 step 2).
type RateLimitPolicy struct {
	MaxCalls        int
	Window          time.Duration
	IdentifierField string
}

// Tool is one entry in the registry: a callable plus its contract.
type Tool struct {
	Name      string
	Callable  Callable
	Schema    map[string]any // JSON Schema for arguments
	CacheTTL  time.Duration  // zero means uncached
	Timeout   time.Duration  // zero defaults to DefaultTimeout
	RateLimit *RateLimitPolicy
}

// DefaultTimeout is applied when a Tool does not specify one (spec §4.9).
const DefaultTimeout = 5 * time.Second

// Registry is the immutable, name-keyed tool catalog. A Builder
// accumulates entries at startup and Freeze produces the Registry served to
// every subsequent call (spec §9).
type Registry struct {
	tools    map[string]*Tool
	compiled map[string]*jsonschema.Schema
}

// Builder accumulates {name, callable, schema, policy} records before the
// first call is served.
type Builder struct {
	tools map[string]*Tool
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{tools: map[string]*Tool{}}
}

// Register adds a tool definition to the builder. Registering the same name
// twice replaces the prior entry, matching how a redeploy would re-seed the
// catalog before Freeze.
func (b *Builder) Register(t Tool) (*Builder, error) {
	if t.Callable == nil {
		return b, fmt.Errorf("toolexec: register %q: %w", t.Name, ErrNoCallable)
	}
	if t.Timeout <= 0 {
		t.Timeout = DefaultTimeout
	}
	tt := t
	b.tools[t.Name] = &tt
	return b, nil
}

// Freeze produces an immutable Registry from the accumulated entries,
// pre-compiling every tool's JSON Schema once so Execute never pays
// compilation cost on the hot path.
func (b *Builder) Freeze() (*Registry, error) {
	frozen := make(map[string]*Tool, len(b.tools))
	compiled := make(map[string]*jsonschema.Schema, len(b.tools))
	for k, v := range b.tools {
		frozen[k] = v
		if v.Schema == nil {
			continue
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(k+".json", v.Schema); err != nil {
			return nil, fmt.Errorf("toolexec: add schema resource for %q: %w", k, err)
		}
		schema, err := c.Compile(k + ".json")
		if err != nil {
			return nil, fmt.Errorf("toolexec: compile schema for %q: %w", k, err)
		}
		compiled[k] = schema
	}
	return &Registry{tools: frozen, compiled: compiled}, nil
}

// Lookup returns the tool registered under name, if any.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// CompiledSchema returns the pre-compiled JSON Schema for name, if its tool
// declared one.
func (r *Registry) CompiledSchema(name string) (*jsonschema.Schema, bool) {
	s, ok := r.compiled[name]
	return s, ok
}

// Names returns every registered tool name, used to expose the tool list to
// the model as part of a journey state's permitted tools.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}

// ErrNoCallable is returned by Register when a Tool is missing its callable.
var ErrNoCallable = errors.New("toolexec: tool callable must not be nil")
