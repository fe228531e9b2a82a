// Package guideline implements the Guideline Engine: guideline definitions,
// a durable store with an in-memory keyword inverted index, a two-stage
// matcher (keyword pre-filter + batch relevance), and the Response
// Validator with its auto-fix call and audit log.
package guideline

import (
	"sort"

	"github.com/aicc2025/ai-native-callcenter/flowerrors"
)

// Scope is a guideline's applicability envelope.
type Scope string

const (
	ScopeGlobal  Scope = "GLOBAL"
	ScopeJourney Scope = "JOURNEY"
	ScopeState   Scope = "STATE"
)

// Priority score bases per spec §3: effective score = scope-base + priority.
const (
	ScoreBaseState   = 3000
	ScoreBaseJourney = 2000
	ScoreBaseGlobal  = 1000
)

// Definition is a scoped business rule with a condition and an action.
type Definition struct {
	ID          string
	Scope       Scope
	Name        string
	Description string
	Condition   string
	Action      string
	Keywords    []string
	Tools       []string
	Priority    int
	Enabled     bool

	// JourneyID is required for JOURNEY and STATE scope, forbidden for GLOBAL.
	JourneyID string
	// StateName is required for STATE scope only.
	StateName string
}

// MatchesScope reports whether the guideline applies given the current
// journey/state context (spec §4.4): GLOBAL always; JOURNEY iff journeyID
// matches; STATE iff both journeyID and stateName match.
func (d *Definition) MatchesScope(journeyID, stateName string) bool {
	switch d.Scope {
	case ScopeGlobal:
		return true
	case ScopeJourney:
		return journeyID != "" && d.JourneyID == journeyID
	case ScopeState:
		return journeyID != "" && stateName != "" && d.JourneyID == journeyID && d.StateName == stateName
	default:
		return false
	}
}

// PriorityScore computes the effective ranking score (spec §3, §8
// invariant 7: for equal numeric priority, STATE > JOURNEY > GLOBAL).
func (d *Definition) PriorityScore() int {
	switch d.Scope {
	case ScopeState:
		return ScoreBaseState + d.Priority
	case ScopeJourney:
		return ScoreBaseJourney + d.Priority
	case ScopeGlobal:
		return ScoreBaseGlobal + d.Priority
	default:
		return 0
	}
}

// SortByPriorityDesc sorts guidelines by descending priority score, ties
// broken by ascending name (spec §4.6 "final ordering", §9 open question on
// the fallback-20 ordering).
func SortByPriorityDesc(defs []*Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		si, sj := defs[i].PriorityScore(), defs[j].PriorityScore()
		if si != sj {
			return si > sj
		}
		return defs[i].Name < defs[j].Name
	})
}

// Validate checks the scope-conditional field requirements of spec §3:
// STATE requires both JourneyID and StateName; JOURNEY requires JourneyID;
// GLOBAL forbids both.
func (d *Definition) Validate(file string, index int) error {
	if d.Name == "" {
		return flowerrors.NewValidationError(file, index, "name", "guideline name must not be empty")
	}
	if d.Condition == "" {
		return flowerrors.NewValidationError(file, index, "condition", "guideline condition must not be empty")
	}
	if d.Action == "" {
		return flowerrors.NewValidationError(file, index, "action", "guideline action must not be empty")
	}
	switch d.Scope {
	case ScopeGlobal:
		if d.JourneyID != "" || d.StateName != "" {
			return flowerrors.NewValidationError(file, index, "scope", "GLOBAL scope forbids journey_id and state_name")
		}
	case ScopeJourney:
		if d.JourneyID == "" {
			return flowerrors.NewValidationError(file, index, "journey_id", "JOURNEY scope requires journey_id")
		}
	case ScopeState:
		if d.JourneyID == "" || d.StateName == "" {
			return flowerrors.NewValidationError(file, index, "state_name", "STATE scope requires journey_id and state_name")
		}
	default:
		return flowerrors.NewValidationError(file, index, "scope", "unknown scope value")
	}
	return nil
}

// Match is a candidate guideline the model has judged applicable.
type Match struct {
	Guideline  *Definition
	Confidence float64
	Reasoning  string
}

// MinMatchConfidence is the floor below which a match is discarded
// (spec §3, §4.6, §8 invariant 4).
const MinMatchConfidence = 0.6
