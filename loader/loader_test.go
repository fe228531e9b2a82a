package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicc2025/ai-native-callcenter/flowerrors"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

const validJourneyYAML = `
billing_dispute:
  name: billing_dispute
  activation_conditions: caller disputes a charge
  initial_state: collect_info
  states:
    collect_info:
      action: ask for the disputed charge amount and date
    confirm:
      action: confirm the dispute details with the caller
  transitions:
    - from_state: collect_info
      to_state: confirm
      condition: caller has provided amount and date
      priority: 0
`

func TestLoadJourneysDirParsesWellFormedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "billing.yaml", validJourneyYAML)

	defs, err := LoadJourneysDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "billing_dispute", defs[0].Name)
	assert.True(t, defs[0].Enabled)
	assert.Len(t, defs[0].Transitions, 1)
}

func TestLoadJourneysDirMissingDirectoryYieldsEmptyList(t *testing.T) {
	t.Parallel()

	defs, err := LoadJourneysDir(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestLoadJourneysDirAbortsOnFirstValidationFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a_good.yaml", validJourneyYAML)
	writeFile(t, dir, "b_bad.yaml", `
broken:
  name: broken
  initial_state: start
  states:
    start:
      action: do something
`) // missing activation_conditions

	_, err := LoadJourneysDir(dir)
	require.Error(t, err)
	var valErr *flowerrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "activation_conditions", valErr.Field)
}

func TestLoadJourneysDirRejectsDuplicateNamesAcrossFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a_first.yaml", validJourneyYAML)
	writeFile(t, dir, "b_second.yaml", validJourneyYAML)

	_, err := LoadJourneysDir(dir)
	require.Error(t, err)
}

func TestLoadJourneysDirProcessesFilesInLexicalOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "z_first.yaml", `
zzz_journey:
  name: zzz_journey
  activation_conditions: any
  initial_state: s
  states:
    s:
      action: a
`)
	writeFile(t, dir, "a_second.yaml", `
aaa_journey:
  name: aaa_journey
  activation_conditions: any
  initial_state: s
  states:
    s:
      action: a
`)

	defs, err := LoadJourneysDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "aaa_journey", defs[0].Name, "a_second.yaml sorts before z_first.yaml lexically")
	assert.Equal(t, "zzz_journey", defs[1].Name)
}

func TestLoadJourneysDirIgnoresNonYAMLFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "billing.yaml", validJourneyYAML)
	writeFile(t, dir, "README.md", "not a journey file")

	defs, err := LoadJourneysDir(dir)
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

const validGuidelineYAML = `
guidelines:
  - name: no-guarantees
    scope: global
    condition: always
    action: never promise a specific refund outcome
    keywords: [refund, guarantee]
    priority: 5
`

func TestLoadGuidelinesDirParsesWellFormedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "global.yaml", validGuidelineYAML)

	assigned := 0
	defs, err := LoadGuidelinesDir(dir, func() string {
		assigned++
		return "generated-id"
	})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "generated-id", defs[0].ID, "an id generator is invoked when the source file omits one")
	assert.Equal(t, 1, assigned)
}

func TestLoadGuidelinesDirPreservesExplicitID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "global.yaml", `
guidelines:
  - id: explicit-id
    name: rule
    scope: global
    condition: c
    action: a
`)

	defs, err := LoadGuidelinesDir(dir, func() string { return "should-not-be-used" })
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "explicit-id", defs[0].ID)
}

func TestLoadGuidelinesDirAbortsOnFirstValidationFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", `
guidelines:
  - name: rule
    scope: global
`) // missing condition and action

	_, err := LoadGuidelinesDir(dir, func() string { return "id" })
	require.Error(t, err)
	var valErr *flowerrors.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestLoadGuidelinesDirScopeIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "global.yaml", `
guidelines:
  - name: rule
    scope: GlObAl
    condition: c
    action: a
`)

	defs, err := LoadGuidelinesDir(dir, func() string { return "id" })
	require.NoError(t, err)
	require.Len(t, defs, 1)
}
