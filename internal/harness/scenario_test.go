package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	schemaSrc, err := os.ReadFile(filepath.Join(scenarioDir, "people.cue"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "people.cue"), schemaSrc, 0o644))
	p := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadScenario_ResolvesSchemaPath(t *testing.T) {
	p := writeScenario(t, `
name: s
description: d
schema: people.cue
steps:
  - { op: create, type: Person }
assertions:
  - { type: store_calls, call: InsertDocument, count: 1 }
`)
	s, err := LoadScenario(p)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(p), "people.cue"), s.Schema)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	p := writeScenario(t, `
name: s
description: d
schema: people.cue
step: []
`)
	_, err := LoadScenario(p)
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestLoadScenario_Validation(t *testing.T) {
	base := "name: s\ndescription: d\nschema: people.cue\n"
	okAssert := "assertions:\n  - { type: store_calls, call: total }\n"
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no name", "description: d\nschema: people.cue\n", "name is required"},
		{"no schema", "name: s\ndescription: d\n", "schema is required"},
		{"missing schema", "name: s\ndescription: d\nschema: gone.cue\n", "schema not found"},
		{"bad driver", base + "driver: postgres\n", "driver"},
		{"no steps", base + okAssert, "steps list is required"},
		{"no assertions", base + "steps:\n  - { op: save, target: p1 }\n", "assertions list is required"},
		{"unknown op", base + "steps:\n  - { op: frob, target: p1 }\n" + okAssert, "unknown op"},
		{"missing target", base + "steps:\n  - { op: reload }\n" + okAssert, "target is required"},
		{"push without values", base + "steps:\n  - { op: push, target: p1 }\n" + okAssert, "values are required"},
		{"embed without relation", base + "steps:\n  - { op: embed, target: p1, type: Address }\n" + okAssert, "relation"},
		{"setup without id", base + "setup:\n  - { type: Person, doc: {} }\nsteps:\n  - { op: save, target: p1 }\n" + okAssert, "doc._id"},
		{"unknown assertion", base + "steps:\n  - { op: save, target: p1 }\nassertions:\n  - { type: vibes }\n", "unknown assertion type"},
		{"stored without expect", base + "steps:\n  - { op: save, target: p1 }\nassertions:\n  - { type: stored, target: p1 }\n", "expect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
