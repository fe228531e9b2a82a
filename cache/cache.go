// Package cache implements the Cache Facade: three logical TTL tiers over a
// single key/value backend (in-memory for tests/local dev, Redis in
// production), with singleflight coalescing of concurrent misses so a burst
// of calls for the same key triggers exactly one refill.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aicc2025/ai-native-callcenter/telemetry"
)

// Tier TTLs, per spec.md §6. L1 entries never expire on their own; they are
// invalidated explicitly when a definition is reloaded.
const (
	TTLActivation  = 300 * time.Second  // L2: journey/guideline activation decisions
	TTLToolResult  = 1800 * time.Second // L3: tool call results
)

// Store is the minimal key/value backend the Facade sits on top of.
// Implementations: MemoryStore (tests, local dev), RedisStore (production).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Increment atomically increments key by 1, creating it with the given
	// TTL if absent, and returns the post-increment value. Used by the Tool
	// Executor's rate limit counters.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Facade is the Cache Facade used by the Journey Engine, Guideline Engine,
// and Tool Executor. It namespaces keys by tier and coalesces concurrent
// refills of the same key via singleflight.
type Facade struct {
	store Store
	group singleflight.Group
	log   telemetry.Logger
}

// New builds a Facade over the given backend. A degraded backend (Get/Set
// errors) never fails a caller; it is logged and treated as a miss or a
// not-stored write, per spec: the core stays available when the cache isn't.
func New(store Store, log telemetry.Logger) *Facade {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Facade{store: store, log: log}
}

// GetOrLoad returns the cached value for key if present; otherwise it calls
// load exactly once per concurrent burst of misses (singleflight), stores
// the result with ttl, and returns it to every waiting caller. Backend read
// and write failures degrade silently rather than propagate: a Get error is
// treated as a miss (falls through to load), and a Set error still returns
// the freshly loaded value instead of an error.
func (f *Facade) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(ctx context.Context) (any, error), out any) error {
	raw, ok, err := f.store.Get(ctx, key)
	if err != nil {
		f.log.Warn(ctx, "cache get failed, degrading to miss", "key", key, "error", err.Error())
		ok = false
	}
	if ok {
		return json.Unmarshal(raw, out)
	}

	v, err, _ := f.group.Do(key, func() (any, error) {
		val, loadErr := load(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		data, marshalErr := json.Marshal(val)
		if marshalErr != nil {
			return nil, fmt.Errorf("cache marshal %q: %w", key, marshalErr)
		}
		if setErr := f.store.Set(ctx, key, data, ttl); setErr != nil {
			f.log.Warn(ctx, "cache set failed, value not stored", "key", key, "error", setErr.Error())
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(v.([]byte), out)
}

// Invalidate removes key from the cache, used when a journey or guideline
// definition is reloaded.
func (f *Facade) Invalidate(ctx context.Context, key string) error {
	return f.store.Delete(ctx, key)
}

// IncrementCounter is used by the Tool Executor's rate limiter: it
// atomically increments a counter keyed by tool+identifier and applies ttl
// the first time the key is created.
func (f *Facade) IncrementCounter(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return f.store.Increment(ctx, key, ttl)
}

// Store exposes the underlying backend for components (like the guideline
// batch relevance cache) that need to write pre-serialized bytes directly.
func (f *Facade) Store() Store { return f.store }

// JourneyDefKey namespaces an L1 journey definition lookup by id.
func JourneyDefKey(id string) string { return "l1:journey:def:" + id }

// JourneyNameKey namespaces an L1 journey definition lookup by name.
func JourneyNameKey(name string) string { return "l1:journey:name:" + name }

// GuidelineDefKey namespaces an L1 guideline definition lookup by id.
func GuidelineDefKey(id string) string { return "l1:guideline:def:" + id }

// ActivationKey namespaces an L2 activation decision by session and the
// SHA-256 hex digest of the raw utterance text (spec.md §9 Open Question:
// the cache key is the content hash, not the utterance itself, so that
// identical text within the same session hits the same cache line).
func ActivationKey(sessionID, utterance string) string {
	return fmt.Sprintf("l2:activation:%s:%s", sessionID, hashText(utterance))
}

// ToolResultKey namespaces an L3 tool result by tool name and the canonical
// (key-sorted) JSON encoding of its arguments.
func ToolResultKey(tool string, canonicalArgs []byte) string {
	sum := sha256.Sum256(canonicalArgs)
	return fmt.Sprintf("l3:tool:result:%s:%s", tool, hex.EncodeToString(sum[:])[:16])
}

// ToolRateLimitKey namespaces a rate-limit counter by tool and identifier.
func ToolRateLimitKey(tool, identifier string) string {
	return fmt.Sprintf("tool:ratelimit:%s:%s", tool, identifier)
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
