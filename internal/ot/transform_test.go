package ot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/otcore/internal/model"
)

func TestRules_CoverEveryKindPair(t *testing.T) {
	for _, p := range model.AllKinds {
		for _, q := range model.AllKinds {
			_, ok := rules[kindPair{p, q}]
			assert.True(t, ok, "missing rule for %s x %s", p, q)
		}
	}
	assert.Len(t, rules, len(model.AllKinds)*len(model.AllKinds))
}

func TestTransform_Converges(t *testing.T) {
	base := fixture()
	ops := candidateOps()
	keys := []struct {
		aOrder  int64
		aClient string
		bOrder  int64
		bClient string
	}{
		{1, "a", 2, "b"},
		{2, "a", 1, "b"},
		{1, "b", 1, "a"},
		{5, "a", 5, "a"},
	}

	checked := 0
	for _, a := range ops {
		afterA, err := Apply(base, a.patches)
		require.NoError(t, err, "candidate %q must apply to the fixture", a.name)
		for _, b := range ops {
			afterB, err := Apply(base, b.patches)
			require.NoError(t, err, "candidate %q must apply to the fixture", b.name)
			for _, k := range keys {
				a2, b2 := Transform(
					Side{Patches: a.patches, Order: k.aOrder, Client: k.aClient},
					Side{Patches: b.patches, Order: k.bOrder, Client: k.bClient},
				)
				left, err := Apply(afterA, b2)
				if !assert.NoError(t, err, "%s | %s (%v): b' does not apply after a", a.name, b.name, k) {
					continue
				}
				right, err := Apply(afterB, a2)
				if !assert.NoError(t, err, "%s | %s (%v): a' does not apply after b", a.name, b.name, k) {
					continue
				}
				if diff := cmp.Diff(left, right); diff != "" {
					t.Errorf("%s | %s (%v) diverged (-a;b' +b;a'):\n%s", a.name, b.name, k, diff)
				}
				checked++
			}
		}
	}
	assert.Equal(t, len(ops)*len(ops)*len(keys), checked)
}

func TestTransform_DisjointPassThrough(t *testing.T) {
	a := ps(setP("color", model.String("red")))
	b := ps(setP("name", model.String("Ana")))
	a2, b2 := Transform(Side{Patches: a, Order: 1, Client: "c1"}, Side{Patches: b, Order: 2, Client: "c2"})
	assert.Equal(t, a, a2)
	assert.Equal(t, b, b2)
}

func TestTransform_SameFieldWriteLargerKeyWins(t *testing.T) {
	red := ps(setP("color", model.String("red")))
	green := ps(setP("color", model.String("green")))

	a2, b2 := Transform(Side{Patches: red, Order: 7, Client: "c1"}, Side{Patches: green, Order: 6, Client: "c9"})
	assert.Equal(t, red, a2)
	assert.Empty(t, b2)

	// Same order: the larger client id wins.
	a2, b2 = Transform(Side{Patches: red, Order: 6, Client: "c1"}, Side{Patches: green, Order: 6, Client: "c9"})
	assert.Empty(t, a2)
	assert.Equal(t, green, b2)
}

func TestTransform_ConcurrentInsertsLowerClientFirst(t *testing.T) {
	base := model.Object{"items": strs("a", "b")}
	x := ps(insP("items", 1, model.String("x")))
	y := ps(insP("items", 1, model.String("y")))

	x2, y2 := Transform(Side{Patches: x, Order: 1, Client: "client-2"}, Side{Patches: y, Order: 1, Client: "client-1"})
	want := model.Object{"items": strs("a", "y", "x", "b")}
	assert.Empty(t, cmp.Diff(want, mustApply(t, mustApply(t, base, x), y2)))
	assert.Empty(t, cmp.Diff(want, mustApply(t, mustApply(t, base, y), x2)))
}

func TestTransform_AncestorWriteWins(t *testing.T) {
	a2, b2 := Transform(
		Side{Patches: ps(setP("meta.k", model.Int(9))), Order: 10, Client: "z"},
		Side{Patches: ps(delP("meta")), Order: 1, Client: "a"},
	)
	assert.Empty(t, a2)
	assert.Equal(t, ps(delP("meta")), b2)
}

func TestTransform_RemapsElementPaths(t *testing.T) {
	a2, _ := Transform(
		Side{Patches: ps(setP("items.1", model.String("B"))), Order: 1, Client: "a"},
		Side{Patches: ps(movP("items", 1, 3)), Order: 2, Client: "b"},
	)
	assert.Equal(t, ps(setP("items.3", model.String("B"))), a2)

	a2, _ = Transform(
		Side{Patches: ps(setP("items.1", model.String("B"))), Order: 1, Client: "a"},
		Side{Patches: ps(remP("items", 1)), Order: 2, Client: "b"},
	)
	assert.Empty(t, a2)
}

func TestTransform_MoveOfRemovedItem(t *testing.T) {
	a2, b2 := Transform(
		Side{Patches: ps(movP("items", 0, 3)), Order: 1, Client: "a"},
		Side{Patches: ps(remP("items", 0)), Order: 2, Client: "b"},
	)
	assert.Empty(t, a2)
	assert.Equal(t, ps(remP("items", 3)), b2)
}

func TestTransform_OverlappingDeletesSplit(t *testing.T) {
	base := model.Object{"title": model.String("abcdef")}
	ins := ps(splP("title", 3, 0, "X"))
	del := ps(splP("title", 1, 4, ""))

	ins2, del2 := Transform(Side{Patches: ins, Order: 1, Client: "a"}, Side{Patches: del, Order: 2, Client: "b"})
	assert.Equal(t, ps(splP("title", 1, 0, "X")), ins2)
	assert.Equal(t, ps(splP("title", 1, 2, ""), splP("title", 2, 2, "")), del2)

	want := model.Object{"title": model.String("aXf")}
	assert.Empty(t, cmp.Diff(want, mustApply(t, mustApply(t, base, ins), del2)))
	assert.Empty(t, cmp.Diff(want, mustApply(t, mustApply(t, base, del), ins2)))
}

func TestTransform_TextOffsetsCountCodePoints(t *testing.T) {
	base := model.Object{"title": model.String("\u00e9t\u00e9")}
	a := ps(splP("title", 0, 0, "\u00e0 "))
	b := ps(splP("title", 3, 0, "!"))

	a2, b2 := Transform(Side{Patches: a, Order: 1, Client: "a"}, Side{Patches: b, Order: 2, Client: "b"})
	want := model.Object{"title": model.String("\u00e0 \u00e9t\u00e9!")}
	assert.Empty(t, cmp.Diff(want, mustApply(t, mustApply(t, base, a), b2)))
	assert.Empty(t, cmp.Diff(want, mustApply(t, mustApply(t, base, b), a2)))
}

func TestTransform_ConcurrentDeletesKeepWinner(t *testing.T) {
	del := ps(delP("color"))
	a2, b2 := Transform(Side{Patches: del, Order: 3, Client: "c1"}, Side{Patches: del, Order: 2, Client: "c2"})
	assert.Equal(t, del, a2)
	assert.Empty(t, b2)

	a2, b2 = Transform(Side{Patches: del, Order: 2, Client: "c1"}, Side{Patches: del, Order: 3, Client: "c2"})
	assert.Empty(t, a2)
	assert.Equal(t, del, b2)
}

func TestTransform_IdentityMoveIsNoop(t *testing.T) {
	still := ps(movP("items", 2, 2))
	ins := ps(insP("items", 2, model.String("n")))

	a2, b2 := Transform(Side{Patches: still, Order: 1, Client: "c1"}, Side{Patches: ins, Order: 2, Client: "c2"})
	assert.Empty(t, a2)
	assert.Equal(t, ins, b2)

	a2, b2 = Transform(Side{Patches: ins, Order: 1, Client: "c1"}, Side{Patches: still, Order: 2, Client: "c2"})
	assert.Equal(t, ins, a2)
	assert.Empty(t, b2)
	assert.Equal(t, ps(movP("items", 2, 2)), still)
}
