// Package loader implements the Definition Loader (spec §4.2): parses and
// validates YAML journey and guideline files, resolves cross-references,
// and emits runtime records. Directories are scanned in lexical file order;
// a single failure aborts the directory load, grounded on the teacher
// pack's skill.ScanDir idiom but accumulate-then-report is replaced with
// abort-on-first-failure per spec.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aicc2025/ai-native-callcenter/flowerrors"
	"github.com/aicc2025/ai-native-callcenter/guideline"
	"github.com/aicc2025/ai-native-callcenter/journey"
)

type journeyStateYAML struct {
	Action   string         `yaml:"action"`
	Tools    []string       `yaml:"tools"`
	Metadata map[string]any `yaml:"metadata"`
}

type journeyTransitionYAML struct {
	FromState string `yaml:"from_state"`
	ToState   string `yaml:"to_state"`
	Condition string `yaml:"condition"`
	Priority  int    `yaml:"priority"`
}

type journeyYAML struct {
	Name                 string                      `yaml:"name"`
	ActivationConditions string                      `yaml:"activation_conditions"`
	InitialState         string                      `yaml:"initial_state"`
	States               map[string]journeyStateYAML `yaml:"states"`
	Transitions          []journeyTransitionYAML     `yaml:"transitions"`
	Enabled              *bool                       `yaml:"enabled"`
}

type journeyFile map[string]journeyYAML

type guidelineYAML struct {
	ID          string   `yaml:"id"`
	Scope       string   `yaml:"scope"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Condition   string   `yaml:"condition"`
	Action      string   `yaml:"action"`
	Keywords    []string `yaml:"keywords"`
	Tools       []string `yaml:"tools"`
	Priority    int      `yaml:"priority"`
	Enabled     *bool    `yaml:"enabled"`
	JourneyID   string   `yaml:"journey_id"`
	StateName   string   `yaml:"state_name"`
}

type guidelineFile struct {
	Guidelines []guidelineYAML `yaml:"guidelines"`
}

// LoadJourneysDir loads every .yaml/.yml file under dir in lexical order,
// aborting on the first validation failure.
func LoadJourneysDir(dir string) ([]*journey.Definition, error) {
	files, err := listDefinitionFiles(dir)
	if err != nil {
		return nil, err
	}

	var out []*journey.Definition
	seenNames := map[string]bool{}
	for _, path := range files {
		defs, err := loadJourneyFile(path)
		if err != nil {
			return nil, err
		}
		for i, def := range defs {
			if seenNames[def.Name] {
				return nil, flowerrors.NewValidationError(path, i, "name", fmt.Sprintf("duplicate journey name %q", def.Name))
			}
			seenNames[def.Name] = true
			out = append(out, def)
		}
	}
	return out, nil
}

func loadJourneyFile(path string) ([]*journey.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %q: %w", path, err)
	}

	var raw journeyFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, flowerrors.NewValidationError(path, 0, "", fmt.Sprintf("invalid yaml: %s", err))
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	defs := make([]*journey.Definition, 0, len(keys))
	for i, key := range keys {
		y := raw[key]
		if y.Name == "" {
			return nil, flowerrors.NewValidationError(path, i, "name", "name is required")
		}
		if y.ActivationConditions == "" {
			return nil, flowerrors.NewValidationError(path, i, "activation_conditions", "activation_conditions is required")
		}
		if y.InitialState == "" {
			return nil, flowerrors.NewValidationError(path, i, "initial_state", "initial_state is required")
		}
		if len(y.States) == 0 {
			return nil, flowerrors.NewValidationError(path, i, "states", "states is required")
		}

		states := make(map[string]journey.State, len(y.States))
		for stateName, s := range y.States {
			if s.Action == "" {
				return nil, flowerrors.NewValidationError(path, i, "states."+stateName+".action", "action is required")
			}
			states[stateName] = journey.State{
				Name:     stateName,
				Action:   s.Action,
				Tools:    s.Tools,
				Metadata: s.Metadata,
			}
		}

		transitions := make([]journey.Transition, 0, len(y.Transitions))
		for _, t := range y.Transitions {
			if t.FromState == "" || t.ToState == "" || t.Condition == "" {
				return nil, flowerrors.NewValidationError(path, i, "transitions", "from_state, to_state, and condition are required")
			}
			transitions = append(transitions, journey.Transition{
				FromState: t.FromState,
				ToState:   t.ToState,
				Condition: t.Condition,
				Priority:  t.Priority,
			})
		}

		enabled := true
		if y.Enabled != nil {
			enabled = *y.Enabled
		}

		def := &journey.Definition{
			Name:                 y.Name,
			ActivationConditions: y.ActivationConditions,
			InitialState:         y.InitialState,
			States:               states,
			Transitions:          transitions,
			Enabled:              enabled,
		}
		if err := def.Validate(path, i); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadGuidelinesDir loads every .yaml/.yml file under dir in lexical order,
// aborting on the first validation failure. Guideline ids are assigned (the
// caller's id generator) when absent from the source file.
func LoadGuidelinesDir(dir string, assignID func() string) ([]*guideline.Definition, error) {
	files, err := listDefinitionFiles(dir)
	if err != nil {
		return nil, err
	}

	var out []*guideline.Definition
	for _, path := range files {
		defs, err := loadGuidelineFile(path, assignID)
		if err != nil {
			return nil, err
		}
		out = append(out, defs...)
	}
	return out, nil
}

func loadGuidelineFile(path string, assignID func() string) ([]*guideline.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %q: %w", path, err)
	}

	var raw guidelineFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, flowerrors.NewValidationError(path, 0, "", fmt.Sprintf("invalid yaml: %s", err))
	}

	defs := make([]*guideline.Definition, 0, len(raw.Guidelines))
	for i, y := range raw.Guidelines {
		if y.Name == "" {
			return nil, flowerrors.NewValidationError(path, i, "name", "name is required")
		}
		if y.Scope == "" {
			return nil, flowerrors.NewValidationError(path, i, "scope", "scope is required")
		}
		if y.Condition == "" {
			return nil, flowerrors.NewValidationError(path, i, "condition", "condition is required")
		}
		if y.Action == "" {
			return nil, flowerrors.NewValidationError(path, i, "action", "action is required")
		}

		id := y.ID
		if id == "" {
			id = assignID()
		}
		enabled := true
		if y.Enabled != nil {
			enabled = *y.Enabled
		}

		def := &guideline.Definition{
			ID:          id,
			Scope:       guideline.Scope(strings.ToUpper(y.Scope)),
			Name:        y.Name,
			Description: y.Description,
			Condition:   y.Condition,
			Action:      y.Action,
			Keywords:    y.Keywords,
			Tools:       y.Tools,
			Priority:    y.Priority,
			Enabled:     enabled,
			JourneyID:   y.JourneyID,
			StateName:   y.StateName,
		}
		if err := def.Validate(path, i); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// listDefinitionFiles returns .yaml/.yml files directly under dir in
// lexical order. A missing directory yields an empty list, not an error.
func listDefinitionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loader: scan %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
