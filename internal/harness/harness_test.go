package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "testdata/scenarios"

func load(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join(scenarioDir, name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestScenarioFilesPass(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(scenarioDir, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			s, err := LoadScenario(f)
			require.NoError(t, err)
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Trace, len(s.Steps))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s := load(t, "lifecycle")
	a, err := Run(s)
	require.NoError(t, err)
	b, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, a.Trace, b.Trace)
}

func TestRun_TraceRecordsUpdates(t *testing.T) {
	result, err := Run(load(t, "lifecycle"))
	require.NoError(t, err)

	embed := result.Trace[1]
	assert.Equal(t, OpEmbed, embed.Op)
	assert.Equal(t, "ack", embed.Outcome)
	require.Len(t, embed.Updates, 1)
	assert.Equal(t, "$push", embed.Updates[0].Operator)
	assert.Equal(t, "people/id-1", embed.Updates[0].Selector)

	rejected := result.Trace[len(result.Trace)-1]
	assert.Equal(t, "error:invalid_field", rejected.Outcome)
	assert.Empty(t, rejected.Updates)
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	s := load(t, "reload_deleted")
	s.Steps[1].Expect = nil

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
}

func TestRun_WrongExpectationsFail(t *testing.T) {
	s := load(t, "push_embedded")
	no := false
	s.Steps[0].Expect = &StepExpect{Ack: &no}
	s.Assertions = append(s.Assertions, Assertion{Type: AssertStoreCalls, Call: "UpdateDocument", Count: 5})

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 2)
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	s := load(t, "push_embedded")
	s.Steps[0].Expect = &StepExpect{Error: "document_not_found"}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "got success")
}

func TestRun_UnknownHandle(t *testing.T) {
	s := load(t, "push_embedded")
	s.Steps[0].Target = "ghost"
	_, err := Run(s)
	assert.ErrorContains(t, err, "unknown handle")
}

func TestRun_TargetOutOfRange(t *testing.T) {
	s := load(t, "push_embedded")
	s.Steps[0].Target = "p1#addresses.3"
	_, err := Run(s)
	assert.ErrorContains(t, err, "children")
}

func TestRun_BadSchema(t *testing.T) {
	s := load(t, "push_embedded")
	s.Schema = t.TempDir()
	_, err := Run(s)
	assert.Error(t, err)
}

func TestOutcome(t *testing.T) {
	yes, no := true, false
	assert.Equal(t, "ok", outcome(nil, nil))
	assert.Equal(t, "ack", outcome(&yes, nil))
	assert.Equal(t, "nack", outcome(&no, nil))
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
