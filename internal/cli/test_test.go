package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pushScenario = `name: push_tags
description: push onto an embedded address
schema: people.cue
setup:
  - type: Person
    doc:
      _id: p1
      addresses:
        - { _id: a1, street: Abbey Road, tags: [old] }
steps:
  - op: push
    target: p1#addresses.0
    values: { tags: [home] }
    expect: { ack: true }
assertions:
  - type: stored
    target: p1#addresses.0
    expect: { tags: [old, home] }
`

const failingScenario = `name: wrong_tags
description: expects the wrong stored aliases
schema: people.cue
setup:
  - type: Person
    doc: { _id: p1, aliases: [a] }
steps:
  - op: push
    target: p1
    values: { aliases: [b] }
assertions:
  - type: stored
    target: p1
    expect: { aliases: [z] }
`

func scenarioDir(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "people.cue"), []byte(validSchema), 0644))
	for name, src := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0644))
	}
	return dir
}

func executeTest(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := executeTest(t, &RootOptions{Format: "text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := executeTest(t, &RootOptions{Format: "text"}, "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := executeTest(t, &RootOptions{Format: "text"}, t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := executeTest(t, &RootOptions{Format: "json"}, t.TempDir())
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandPassingScenario(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"push_tags.yaml": pushScenario})

	out, err := executeTest(t, &RootOptions{Format: "text"}, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ push_tags")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"push_tags.yaml":  pushScenario,
		"wrong_tags.yaml": failingScenario,
	})

	out, err := executeTest(t, &RootOptions{Format: "json"}, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)

	for _, s := range resp.Data.Scenarios {
		if s.Name == "wrong_tags" {
			require.NotEmpty(t, s.Errors)
			assert.Contains(t, s.Errors[0], "Assertion failed: stored p1")
		}
	}
}

func TestTestCommandLoadError(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"broken.yaml": "name: broken\nschema: people.cue\nbogus: 1\n"})

	out, err := executeTest(t, &RootOptions{Format: "text"}, dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"push_tags.yaml": pushScenario})

	_, err := executeTest(t, &RootOptions{Format: "text"}, dir, "--update")
	require.NoError(t, err)

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "push_tags.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"push_tags"`)
	assert.Contains(t, string(golden), `"operator":"$push"`)

	out, err := executeTest(t, &RootOptions{Format: "text"}, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ push_tags")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "push_tags.golden"), []byte(`{}`), 0644))
	out, err = executeTest(t, &RootOptions{Format: "text"}, dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandFilter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"push_tags.yaml":  pushScenario,
		"wrong_tags.yaml": failingScenario,
	})

	out, err := executeTest(t, &RootOptions{Format: "text"}, dir, "--filter", "push_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestHelpText(t *testing.T) {
	out, err := executeTest(t, &RootOptions{Format: "text"}, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "scenarios-dir")
	assert.Contains(t, out, "--update")
	assert.Contains(t, out, "--filter")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test1.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "test2.yml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "ignore.txt"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesSubdirectories(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	require.NoError(t, os.MkdirAll(subDir, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "root.yaml"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "sub.yaml"), []byte(""), 0644))

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindScenarioFilesBadPattern(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a.yaml"), []byte(""), 0644))

	_, err := findScenarioFiles(tmpDir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestGoldenFilePath(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"/path/to/scenario.yaml", "/path/to/golden/scenario.golden"},
		{"/path/to/scenario.yml", "/path/to/golden/scenario.golden"},
		{"scenarios/test.yaml", "scenarios/golden/test.golden"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, goldenFilePath(tc.input))
	}
}
