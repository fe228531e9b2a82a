package guideline

import (
	"context"
	"fmt"
	"strings"

	fcmodel "github.com/aicc2025/ai-native-callcenter/model"
	"github.com/aicc2025/ai-native-callcenter/telemetry"
)

// stopwords is the small fixed set dropped during tokenization (spec §4.6).
// Non-goals explicitly exclude anything beyond whitespace/stopword keyword
// extraction, so this list stays short and hand-maintained.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {},
	"with": {}, "that": {}, "this": {}, "from": {}, "have": {}, "has": {},
	"you": {}, "your": {}, "about": {}, "can": {}, "will": {}, "would": {},
	"could": {}, "should": {}, "there": {}, "their": {}, "what": {},
}

// fallbackLimit bounds the scope-only fallback candidate set (spec §4.6,
// §9 open question on deterministic ordering: descending priority then
// ascending name).
const fallbackLimit = 20

// Matcher implements the Guideline Matcher (spec §4.6): keyword pre-filter
// then a single structured batch-relevance model call.
type Matcher struct {
	client fcmodel.Client
	store  *Store
	log    telemetry.Logger
}

// NewMatcher builds a Guideline Matcher.
func NewMatcher(client fcmodel.Client, store *Store, log telemetry.Logger) *Matcher {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Matcher{client: client, store: store, log: log}
}

// Tokenize extracts keyword candidates from an utterance: split on
// [A-Za-z0-9]+, lowercase, drop tokens shorter than 3 characters and the
// fixed stopword set (spec §4.6 stage 1).
func Tokenize(utterance string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tok := strings.ToLower(cur.String())
		cur.Reset()
		if len(tok) < 3 {
			return
		}
		if _, stop := stopwords[tok]; stop {
			return
		}
		tokens = append(tokens, tok)
	}
	for _, r := range utterance {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if isAlnum {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// Match runs the two-stage pipeline for one utterance against the active
// journey/state scope.
func (m *Matcher) Match(ctx context.Context, utterance string, journeyID, stateName string, variables map[string]any) ([]Match, error) {
	scopeEligible := m.store.GetGuidelinesByScope(journeyID, stateName)
	if len(scopeEligible) == 0 {
		return nil, nil
	}

	candidates := m.stage1(utterance, scopeEligible)
	if len(candidates) == 0 {
		return nil, nil
	}

	matches, err := m.stage2(ctx, utterance, variables, candidates)
	if err != nil {
		m.log.Warn(ctx, "guideline relevance scoring failed, returning no matches", "error", err.Error())
		return nil, nil
	}
	return matches, nil
}

// stage1 implements the keyword pre-filter: tokenize, union posting lists,
// intersect with scope eligibility, fall back to the first 20 scope-eligible
// guidelines (by priority then name) if the intersection is empty.
func (m *Matcher) stage1(utterance string, scopeEligible []*Definition) []*Definition {
	keywords := Tokenize(utterance)
	if len(keywords) == 0 {
		return nil
	}

	keywordCandidates := m.store.index.CandidatesByKeywords(keywords)
	intersection := make([]*Definition, 0)
	for _, d := range scopeEligible {
		if _, ok := keywordCandidates[d.ID]; ok {
			intersection = append(intersection, d)
		}
	}

	if len(intersection) > 0 {
		SortByPriorityDesc(intersection)
		return intersection
	}

	// Empty intersection but a non-empty scope set: fall back so
	// scope-only rules without keyword hints remain evaluable.
	fallback := make([]*Definition, len(scopeEligible))
	copy(fallback, scopeEligible)
	SortByPriorityDesc(fallback)
	if len(fallback) > fallbackLimit {
		fallback = fallback[:fallbackLimit]
	}
	return fallback
}

type relevanceVerdict struct {
	GuidelineID string  `json:"guideline_id"`
	Applies     bool    `json:"applies"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

type relevanceResponse struct {
	Verdicts []relevanceVerdict `json:"verdicts"`
}

// stage2 issues the single batch-relevance structured model call and keeps
// only verdicts that apply, clear the confidence floor, and map back to a
// known candidate (model untrusted).
func (m *Matcher) stage2(ctx context.Context, utterance string, variables map[string]any, candidates []*Definition) ([]Match, error) {
	byID := make(map[string]*Definition, len(candidates))
	var sb strings.Builder
	sb.WriteString("Candidate guidelines:\n")
	for _, d := range candidates {
		byID[d.ID] = d
		fmt.Fprintf(&sb, "- id=%s name=%q description=%q condition=%q action=%q scope=%s\n",
			d.ID, d.Name, d.Description, d.Condition, d.Action, d.Scope)
	}
	fmt.Fprintf(&sb, "\nVariables: %v\nUtterance: %q\n", variables, utterance)
	sb.WriteString("\nFor each candidate, decide whether it applies to this utterance.")

	req := &fcmodel.Request{
		Temperature: 0,
		Messages: []*fcmodel.Message{
			fcmodel.System("You score business guideline relevance for a call center conversation. Respond only with the requested JSON object."),
			fcmodel.User(sb.String()),
		},
		ResponseFormat: &fcmodel.ResponseFormat{
			Name: "guideline_relevance",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"verdicts": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"guideline_id": map[string]any{"type": "string"},
								"applies":      map[string]any{"type": "boolean"},
								"confidence":   map[string]any{"type": "number"},
								"reasoning":    map[string]any{"type": "string"},
							},
							"required": []string{"guideline_id", "applies", "confidence", "reasoning"},
						},
					},
				},
				"required": []string{"verdicts"},
			},
		},
	}

	var resp relevanceResponse
	if err := fcmodel.CompleteStructured(ctx, m.client, req, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Verdicts))
	for _, v := range resp.Verdicts {
		if !v.Applies || v.Confidence < MinMatchConfidence {
			continue
		}
		d, ok := byID[v.GuidelineID]
		if !ok {
			continue // unknown id: model untrusted, dropped per spec §4.6
		}
		matches = append(matches, Match{Guideline: d, Confidence: v.Confidence, Reasoning: v.Reasoning})
	}

	sortMatchesByPriority(matches)
	return matches, nil
}

func sortMatchesByPriority(matches []Match) {
	defs := make([]*Definition, len(matches))
	for i, mm := range matches {
		defs[i] = mm.Guideline
	}
	byDef := make(map[*Definition]Match, len(matches))
	for _, mm := range matches {
		byDef[mm.Guideline] = mm
	}
	SortByPriorityDesc(defs)
	for i, d := range defs {
		matches[i] = byDef[d]
	}
}
