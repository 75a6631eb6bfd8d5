package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/store"
)

func int64p(n int64) *int64 { return &n }

func loadFixture(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Fixtures(t *testing.T) {
	for _, name := range []string{"concurrent-field-writes", "concurrent-list-inserts", "rejections"} {
		t.Run(name, func(t *testing.T) {
			s := loadFixture(t, name)
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_SQLiteMatchesMemory(t *testing.T) {
	s := loadFixture(t, "concurrent-list-inserts")

	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "harness.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	result, err := RunWithGolden(t, s, WithStore(db))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_Deterministic(t *testing.T) {
	s := loadFixture(t, "rejections")

	first, err := Run(context.Background(), s)
	require.NoError(t, err)
	second, err := Run(context.Background(), s)
	require.NoError(t, err)

	a, err := first.Golden(s)
	require.NoError(t, err)
	b, err := second.Golden(s)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ExpectationFailures(t *testing.T) {
	s := &Scenario{
		Name:        "failing",
		Description: "every expectation is wrong",
		Object:      "gym/boulder/wall-1",
		Initial:     map[string]any{"grade": "6a"},
		Steps: []Step{
			{
				Client:  "alice",
				Base:    1,
				Patches: []map[string]any{{"op": "set", "path": "grade", "value": "6b"}},
				Expect: &Expect{
					Revision: int64p(5),
					Applied:  []map[string]any{{"op": "set", "path": "grade", "value": "7a"}},
				},
			},
			{
				Client:  "bob",
				Base:    9,
				Patches: []map[string]any{{"op": "set", "path": "grade", "value": "7a"}},
				Expect:  &Expect{Skipped: true},
			},
			{
				Client:  "carol",
				Base:    2,
				Patches: []map[string]any{{"op": "set", "path": "sector", "value": "roof"}},
				Expect:  &Expect{Error: "NOT_FOUND"},
			},
		},
		Assertions: []Assertion{
			{Type: AssertValue, Value: map[string]any{"grade": "6a"}},
			{Type: AssertField, Path: "missing"},
			{Type: AssertField, Path: "grade", Value: "6a"},
			{Type: AssertRevision, Revision: 7},
			{Type: AssertReplay},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	joined := result.Errors
	assert.Contains(t, joined, "steps[0] (alice): expected revision 5, got 2")
	assert.Contains(t, joined, `steps[0] (alice): applied patches differ: want [{"op":"set","path":"grade","value":"7a"}], got [{"op":"set","path":"grade","value":"6b"}]`)
	assert.Contains(t, joined, "steps[1] (bob): unexpected error INVALID_BASE_REVISION")
	assert.Contains(t, joined, "steps[2] (carol): expected error NOT_FOUND, got committed")
	assert.Contains(t, joined, `assertions[0]: document differs: want {"grade":"6a"}, got {"grade":"6b","sector":"roof"}`)
	assert.Contains(t, joined, "assertions[1]: field missing not found")
	assert.Contains(t, joined, `assertions[2]: field grade: want "6a", got "6b"`)
	assert.Contains(t, joined, "assertions[3]: expected revision 7, got 3")
	assert.Len(t, joined, 8)
}

func TestRun_NoInitialCreatesAtBaseZero(t *testing.T) {
	s := &Scenario{
		Name:        "create",
		Description: "first step creates the object",
		Object:      "gym/account/u-1",
		Steps: []Step{
			{
				Client:  "alice",
				Base:    0,
				Patches: []map[string]any{{"op": "set", "path": "name", "value": "Ana"}},
				Expect:  &Expect{Revision: int64p(1)},
			},
		},
		Assertions: []Assertion{
			{Type: AssertField, Path: "name", Value: "Ana"},
			{Type: AssertReplay},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, OutcomeCommitted, result.Trace[0].Outcome)
	assert.Equal(t, int64(1), result.Final.Revision)
}

func TestRun_UnknownObjectStaysEmpty(t *testing.T) {
	s := &Scenario{
		Name:        "missing",
		Description: "editing an object that does not exist",
		Object:      "gym/account/u-2",
		Steps: []Step{
			{
				Client:  "alice",
				Base:    3,
				Patches: []map[string]any{{"op": "set", "path": "name", "value": "Ana"}},
				Expect:  &Expect{Error: "NOT_FOUND"},
			},
		},
		Assertions: []Assertion{
			{Type: AssertRevision, Revision: 0},
			{Type: AssertReplay},
		},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, model.EmptyDocument(), result.Final.Value)

	golden, err := result.Golden(s)
	require.NoError(t, err)
	assert.Equal(t, `{"scenario":"missing","object":"gym/account/u-2"}
{"seq":1,"client":"alice","base":3,"outcome":"rejected","error":"NOT_FOUND"}
{"revision":0,"value":{}}
`, string(golden))
}

func TestLookup(t *testing.T) {
	doc := model.Object{"a": model.Object{"b": model.Int(1)}, "s": model.String("x")}

	v, ok := lookup(doc, model.Path{"a", "b"})
	require.True(t, ok)
	assert.Equal(t, model.Int(1), v)

	_, ok = lookup(doc, model.Path{"s", "b"})
	assert.False(t, ok)
	_, ok = lookup(doc, model.Path{"z"})
	assert.False(t, ok)
}
