package ot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/otcore/internal/model"
)

func setP(path string, v model.Value) model.Patch {
	return model.SetField{Path: model.MustParsePath(path), Value: v}
}

func delP(path string) model.Patch {
	return model.DeleteField{Path: model.MustParsePath(path)}
}

func insP(path string, i int, v model.Value) model.Patch {
	return model.InsertListItem{Path: model.MustParsePath(path), Index: i, Value: v}
}

func remP(path string, i int) model.Patch {
	return model.RemoveListItem{Path: model.MustParsePath(path), Index: i}
}

func movP(path string, from, to int) model.Patch {
	return model.MoveListItem{Path: model.MustParsePath(path), From: from, To: to}
}

func splP(path string, i, n int, text string) model.Patch {
	return model.SpliceText{Path: model.MustParsePath(path), Index: i, DeleteCount: n, Text: text}
}

func ps(p ...model.Patch) []model.Patch {
	return p
}

func strs(ss ...string) model.Array {
	out := make(model.Array, len(ss))
	for i, s := range ss {
		out[i] = model.String(s)
	}
	return out
}

// fixture is the shared starting document for transform tests.
func fixture() model.Object {
	return model.Object{
		"color": model.String("blue"),
		"title": model.String("hello world"),
		"items": strs("a", "b", "c", "d"),
		"meta": model.Object{
			"k":    model.Int(1),
			"tags": strs("x", "y"),
		},
		"setters": model.Array{
			model.Object{"name": model.String("ana")},
			model.Object{"name": model.String("bo")},
		},
	}
}

func mustApply(t *testing.T, doc model.Object, patches []model.Patch) model.Object {
	t.Helper()
	out, err := Apply(doc, patches)
	require.NoError(t, err)
	return out
}

type namedOp struct {
	name    string
	patches []model.Patch
}

// candidateOps covers every kind at same, ancestor, descendant and
// disjoint paths relative to one another.
func candidateOps() []namedOp {
	return []namedOp{
		{"set color red", ps(setP("color", model.String("red")))},
		{"set color green", ps(setP("color", model.String("green")))},
		{"delete color", ps(delP("color"))},
		{"set new name", ps(setP("name", model.String("Ana")))},
		{"delete ghost", ps(delP("ghost"))},
		{"set root", ps(setP("", model.Object{"fresh": model.Bool(true)}))},

		{"set meta", ps(setP("meta", model.Object{}))},
		{"delete meta", ps(delP("meta"))},
		{"set meta.k", ps(setP("meta.k", model.Int(2)))},
		{"delete meta.k", ps(delP("meta.k"))},
		{"insert meta.tags 0", ps(insP("meta.tags", 0, model.String("w")))},
		{"remove meta.tags 1", ps(remP("meta.tags", 1))},
		{"set meta.tags.0", ps(setP("meta.tags.0", model.String("X")))},

		{"insert items 0", ps(insP("items", 0, model.String("p")))},
		{"insert items 2", ps(insP("items", 2, model.String("q")))},
		{"insert items 4", ps(insP("items", 4, model.String("r")))},
		{"remove items 0", ps(remP("items", 0))},
		{"remove items 2", ps(remP("items", 2))},
		{"remove items 3", ps(remP("items", 3))},
		{"move items 0->3", ps(movP("items", 0, 3))},
		{"move items 0->1", ps(movP("items", 0, 1))},
		{"move items 3->0", ps(movP("items", 3, 0))},
		{"move items 1->2", ps(movP("items", 1, 2))},
		{"move items 2->1", ps(movP("items", 2, 1))},
		{"set items.1", ps(setP("items.1", model.String("B")))},
		{"splice items.2", ps(splP("items.2", 0, 1, "C"))},
		{"set items", ps(setP("items", strs("z")))},
		{"delete items", ps(delP("items"))},

		{"insert missing tags", ps(insP("tags", 0, model.String("t1")))},
		{"insert missing tags again", ps(insP("tags", 0, model.String("t2")))},

		{"splice title prefix", ps(splP("title", 0, 0, "oh "))},
		{"splice title replace word", ps(splP("title", 6, 5, "there"))},
		{"splice title delete middle", ps(splP("title", 3, 4, ""))},
		{"splice title replace space", ps(splP("title", 5, 1, "_"))},
		{"splice title append", ps(splP("title", 11, 0, "!"))},
		{"splice title replace all", ps(splP("title", 0, 11, "replaced"))},
		{"set title", ps(setP("title", model.String("new")))},

		{"set setters.0.name", ps(setP("setters.0.name", model.String("Al")))},
		{"set setters.1.name", ps(setP("setters.1.name", model.String("Bob")))},
		{"delete setters.1.name", ps(delP("setters.1.name"))},
		{"splice setters.0.name", ps(splP("setters.0.name", 0, 1, "A"))},
		{"remove setters 0", ps(remP("setters", 0))},
		{"insert setters 0", ps(insP("setters", 0, model.Object{"name": model.String("cy")}))},
		{"move setters 1->0", ps(movP("setters", 1, 0))},

		// Multi-patch sequences.
		{"insert then edit item", ps(insP("items", 0, model.String("p")), setP("items.1", model.String("A")))},
		{"two title splices", ps(splP("title", 0, 5, "howdy"), splP("title", 5, 0, ","))},
		{"set then delete color", ps(setP("color", model.String("red")), delP("color"))},
		{"move then remove", ps(movP("items", 0, 3), remP("items", 0))},
		{"create tags list", ps(insP("tags", 0, model.String("t")), insP("tags", 1, model.String("u")))},
		{"meta edits", ps(setP("meta.k", model.Int(5)), insP("meta.tags", 2, model.String("z")))},
	}
}
