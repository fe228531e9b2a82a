package journey

import (
	"context"
	"encoding/json"
	"sync"

	fccache "github.com/aicc2025/ai-native-callcenter/cache"
	"github.com/aicc2025/ai-native-callcenter/flowerrors"
)

// DurableStore is the relational backing store for journey definitions and
// contexts (spec §6: the `journeys` and `journey_contexts` tables).
// storage/postgres implements it.
type DurableStore interface {
	UpsertJourney(ctx context.Context, def *Definition) error
	GetJourney(ctx context.Context, id string) (*Definition, error)
	GetJourneyByName(ctx context.Context, name string) (*Definition, error)
	GetAllJourneys(ctx context.Context) ([]*Definition, error)

	InsertContext(ctx context.Context, c *Context) error
	UpdateContext(ctx context.Context, c *Context) error
	GetActiveContext(ctx context.Context, sessionID string) (*Context, error)
}

// Store is the Journey Store (spec §4.3): cache-through reads over a
// durable relational backend, with an in-memory name→id index mirroring L1.
type Store struct {
	durable DurableStore
	cache   *fccache.Facade

	mu       sync.RWMutex
	nameToID map[string]string
}

// NewStore builds a Journey Store over durable and cache.
func NewStore(durable DurableStore, cache *fccache.Facade) *Store {
	return &Store{durable: durable, cache: cache, nameToID: map[string]string{}}
}

// LoadAll preloads every journey definition, enabled or not, into L1 (spec §4.3
// load_all()). Called once at startup after the Definition Loader runs.
func (s *Store) LoadAll(ctx context.Context) error {
	defs, err := s.durable.GetAllJourneys(ctx)
	if err != nil {
		return flowerrors.NewUpstreamError("durable_store", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range defs {
		data, _ := marshalJourney(def)
		_ = s.cache.Store().Set(ctx, fccache.JourneyDefKey(def.ID), data, 0)
		s.nameToID[def.Name] = def.ID
	}
	return nil
}

// GetJourney returns the journey with id, reading through L1 then the
// durable store, refilling L1 on miss.
func (s *Store) GetJourney(ctx context.Context, id string) (*Definition, error) {
	var def Definition
	err := s.cache.GetOrLoad(ctx, fccache.JourneyDefKey(id), 0, func(ctx context.Context) (any, error) {
		d, err := s.durable.GetJourney(ctx, id)
		if err != nil {
			return nil, flowerrors.NewUpstreamError("durable_store", err)
		}
		if d == nil {
			return nil, flowerrors.NewNotFoundError("journey", id)
		}
		return d, nil
	}, &def)
	if flowerrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// GetJourneyByName resolves a journey via the in-memory name→id index, then
// GetJourney.
func (s *Store) GetJourneyByName(ctx context.Context, name string) (*Definition, error) {
	s.mu.RLock()
	id, ok := s.nameToID[name]
	s.mu.RUnlock()
	if ok {
		return s.GetJourney(ctx, id)
	}
	def, err := s.durable.GetJourneyByName(ctx, name)
	if err != nil {
		return nil, flowerrors.NewUpstreamError("durable_store", err)
	}
	if def == nil {
		return nil, nil
	}
	s.mu.Lock()
	s.nameToID[def.Name] = def.ID
	s.mu.Unlock()
	data, _ := marshalJourney(def)
	_ = s.cache.Store().Set(ctx, fccache.JourneyDefKey(def.ID), data, 0)
	return def, nil
}

// GetAllJourneys returns every journey definition directly from the durable
// store (used by the matcher to enumerate activation candidates).
func (s *Store) GetAllJourneys(ctx context.Context) ([]*Definition, error) {
	defs, err := s.durable.GetAllJourneys(ctx)
	if err != nil {
		return nil, flowerrors.NewUpstreamError("durable_store", err)
	}
	return defs, nil
}

// CreateContext persists a new context synchronously, then caches nothing
// (contexts are not L1 material; they are looked up per-session by the
// durable store directly, per spec §4.3).
func (s *Store) CreateContext(ctx context.Context, c *Context) error {
	if err := s.durable.InsertContext(ctx, c); err != nil {
		return flowerrors.NewUpstreamError("durable_store", err)
	}
	return nil
}

// UpdateContext persists a context mutation. Per spec §4.7/§7, write
// failures propagate and the turn is reported failed.
func (s *Store) UpdateContext(ctx context.Context, c *Context) error {
	if err := s.durable.UpdateContext(ctx, c); err != nil {
		return flowerrors.NewUpstreamError("durable_store", err)
	}
	return nil
}

// GetActiveContext returns the most recently activated, not-yet-completed
// context for sessionID, or nil if none exists.
func (s *Store) GetActiveContext(ctx context.Context, sessionID string) (*Context, error) {
	c, err := s.durable.GetActiveContext(ctx, sessionID)
	if err != nil {
		return nil, flowerrors.NewUpstreamError("durable_store", err)
	}
	return c, nil
}

// UpsertDefinition writes a journey definition through the durable store and
// refreshes L1 and the name index, used by the Definition Loader.
func (s *Store) UpsertDefinition(ctx context.Context, def *Definition) error {
	if err := s.durable.UpsertJourney(ctx, def); err != nil {
		return flowerrors.NewUpstreamError("durable_store", err)
	}
	data, _ := marshalJourney(def)
	_ = s.cache.Store().Set(ctx, fccache.JourneyDefKey(def.ID), data, 0)
	s.mu.Lock()
	s.nameToID[def.Name] = def.ID
	s.mu.Unlock()
	return nil
}

func marshalJourney(def *Definition) ([]byte, error) {
	return json.Marshal(def)
}
