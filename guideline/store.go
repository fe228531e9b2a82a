package guideline

import (
	"context"
	"encoding/json"
	"sync"

	fccache "github.com/aicc2025/ai-native-callcenter/cache"
	"github.com/aicc2025/ai-native-callcenter/flowerrors"
)

func marshalGuideline(def *Definition) ([]byte, error) {
	return json.Marshal(def)
}

// DurableStore is the relational backing store for guideline definitions
// (spec §6: the `guidelines` table). storage/postgres implements it.
type DurableStore interface {
	UpsertGuideline(ctx context.Context, def *Definition) error
	GetGuideline(ctx context.Context, id string) (*Definition, error)
	GetAllGuidelines(ctx context.Context) ([]*Definition, error)
}

// Index is the in-memory inverted index from lowercase keyword to the set
// of guideline ids that declare it (spec §4.4). Rebuilt wholesale by
// LoadAll; never incrementally updated at runtime, so reads need no lock
// beyond the swap itself.
type Index struct {
	mu       sync.RWMutex
	postings map[string]map[string]struct{}
}

func newIndex() *Index {
	return &Index{postings: map[string]map[string]struct{}{}}
}

func (ix *Index) rebuild(defs []*Definition) {
	postings := make(map[string]map[string]struct{})
	for _, d := range defs {
		for _, kw := range d.Keywords {
			k := normalizeKeyword(kw)
			if k == "" {
				continue
			}
			set, ok := postings[k]
			if !ok {
				set = map[string]struct{}{}
				postings[k] = set
			}
			set[d.ID] = struct{}{}
		}
	}
	ix.mu.Lock()
	ix.postings = postings
	ix.mu.Unlock()
}

// CandidatesByKeywords returns the union of posting lists for keywords.
// This is an accelerator only: §4.4 requires callers to intersect with a
// scope filter, since the index is never authoritative on its own.
func (ix *Index) CandidatesByKeywords(keywords []string) map[string]struct{} {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	union := map[string]struct{}{}
	for _, kw := range keywords {
		k := normalizeKeyword(kw)
		for id := range ix.postings[k] {
			union[id] = struct{}{}
		}
	}
	return union
}

func normalizeKeyword(kw string) string {
	out := make([]rune, 0, len(kw))
	for _, r := range kw {
		if r >= 'A' && r <= 'Z' {
			r = r - 'A' + 'a'
		}
		out = append(out, r)
	}
	return string(out)
}

// Store is the Guideline Store (spec §4.4): a durable catalog plus the
// keyword inverted index.
type Store struct {
	durable DurableStore
	cache   *fccache.Facade
	index   *Index

	mu   sync.RWMutex
	byID map[string]*Definition
}

// NewStore builds a Guideline Store over durable and cache.
func NewStore(durable DurableStore, cache *fccache.Facade) *Store {
	return &Store{durable: durable, cache: cache, index: newIndex(), byID: map[string]*Definition{}}
}

// LoadAll preloads every guideline definition into L1 and rebuilds the
// inverted index wholesale (spec §4.4).
func (s *Store) LoadAll(ctx context.Context) error {
	defs, err := s.durable.GetAllGuidelines(ctx)
	if err != nil {
		return flowerrors.NewUpstreamError("durable_store", err)
	}
	byID := make(map[string]*Definition, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
		data, _ := marshalGuideline(d)
		_ = s.cache.Store().Set(ctx, fccache.GuidelineDefKey(d.ID), data, 0)
	}
	s.mu.Lock()
	s.byID = byID
	s.mu.Unlock()
	s.index.rebuild(defs)
	return nil
}

// GetGuideline returns the guideline with id from the in-memory catalog.
func (s *Store) GetGuideline(id string) (*Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	return d, ok
}

// GetCandidatesByKeywords returns the union of posting lists for keywords
// (spec §4.4 get_candidates_by_keywords).
func (s *Store) GetCandidatesByKeywords(keywords []string) []*Definition {
	ids := s.index.CandidatesByKeywords(keywords)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Definition, 0, len(ids))
	for id := range ids {
		if d, ok := s.byID[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// GetGuidelinesByScope returns, in descending priority order, every enabled
// guideline whose scope matches the given journey/state (spec §4.4). This
// method is authoritative: the inverted index is never a filter, only an
// accelerator.
func (s *Store) GetGuidelinesByScope(journeyID, stateName string) []*Definition {
	s.mu.RLock()
	all := make([]*Definition, 0, len(s.byID))
	for _, d := range s.byID {
		all = append(all, d)
	}
	s.mu.RUnlock()

	out := make([]*Definition, 0, len(all))
	for _, d := range all {
		if !d.Enabled {
			continue
		}
		if d.MatchesScope(journeyID, stateName) {
			out = append(out, d)
		}
	}
	SortByPriorityDesc(out)
	return out
}

// UpsertDefinition writes a guideline definition through the durable store;
// callers must call LoadAll afterward to refresh the index.
func (s *Store) UpsertDefinition(ctx context.Context, def *Definition) error {
	if err := s.durable.UpsertGuideline(ctx, def); err != nil {
		return flowerrors.NewUpstreamError("durable_store", err)
	}
	return nil
}
