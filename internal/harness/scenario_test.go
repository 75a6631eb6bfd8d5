package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/otcore/internal/model"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	content := `
name: test_scenario
description: "Test scenario for validation"
object: gym/boulder/wall-1
initial:
  grade: 6a
steps:
  - client: alice
    base: 1
    patches:
      - {op: set, path: grade, value: 6b}
    expect:
      revision: 2
assertions:
  - type: field
    path: grade
    value: 6b
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", s.Name)
	assert.Equal(t, "gym/boulder/wall-1", s.Object)
	assert.Equal(t, "6a", s.Initial["grade"])
	require.Len(t, s.Steps, 1)
	assert.Equal(t, "alice", s.Steps[0].Client)
	assert.Equal(t, int64(1), s.Steps[0].Base)
	require.NotNil(t, s.Steps[0].Expect)
	require.NotNil(t, s.Steps[0].Expect.Revision)
	assert.Equal(t, int64(2), *s.Steps[0].Expect.Revision)
	assert.Len(t, s.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: x
description: x
object: gym/boulder/a
stpes: []
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	const head = "name: x\ndescription: x\nobject: gym/boulder/a\n"
	const step = "steps:\n  - client: a\n    base: 0\n    patches: [{op: set, path: f, value: 1}]\n"

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "description: x\nobject: gym/boulder/a\n" + step, "name is required"},
		{"missing description", "name: x\nobject: gym/boulder/a\n" + step, "description is required"},
		{"bad object", "name: x\ndescription: x\nobject: nope\n" + step, "object"},
		{"no steps", head, "steps list is required"},
		{"missing client", head + "steps:\n  - base: 0\n", "client is required"},
		{"negative base", head + "steps:\n  - client: a\n    base: -1\n", "base must be non-negative"},
		{"bad patch", head + "steps:\n  - client: a\n    patches: [{op: insert, path: f}]\n", "steps[0]"},
		{"unknown error code", head + step + "    expect: {error: NOPE}\n", "unknown error code"},
		{"duplicate and skipped", head + step + "    expect: {duplicate: true, skipped: true}\n", "exclusive"},
		{"assertion without type", head + step + "assertions:\n  - path: f\n", "type is required"},
		{"unknown assertion", head + step + "assertions:\n  - type: magic\n", "unknown assertion type"},
		{"field without path", head + step + "assertions:\n  - type: field\n    value: 1\n", "path is required"},
		{"value not a mapping", head + step + "assertions:\n  - type: value\n    value: 1\n", "must be a mapping"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecodePatches(t *testing.T) {
	ps, err := decodePatches([]map[string]any{
		{"op": "set", "path": "a.b", "value": "x"},
		{"op": "insert", "path": "items", "index": 2, "value": 7},
		{"op": "splice", "path": "name", "index": 0, "delete": 1, "text": "J"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.Patches{
		model.SetField{Path: model.Path{"a", "b"}, Value: model.String("x")},
		model.InsertListItem{Path: model.Path{"items"}, Index: 2, Value: model.Int(7)},
		model.SpliceText{Path: model.Path{"name"}, Index: 0, DeleteCount: 1, Text: "J"},
	}, ps)

	empty, err := decodePatches(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
