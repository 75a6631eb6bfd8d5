package ot

import (
	"slices"

	"github.com/roach88/otcore/internal/model"
)

// Side is one of two concurrent patch sequences handed to Transform.
//
// Order and Client form the priority key (Order, Client) used to decide
// same-target write conflicts: the larger key wins. Client alone orders
// concurrent inserts at the same position: the lower client id goes first.
type Side struct {
	Patches []model.Patch
	Order   int64
	Client  string
}

// Transform returns a2 and b2 such that applying a then b2 yields the same
// document as applying b then a2. Patches that lose a conflict are
// dropped from the output, so either result may be shorter than its input.
//
// Identity moves are dropped from both sides before transforming; Compose
// drops them too, so they never shift a concurrent edit.
func Transform(a, b Side) (a2, b2 []model.Patch) {
	a.Patches, b.Patches = withoutNoops(a.Patches), withoutNoops(b.Patches)
	aWins := a.Order > b.Order || (a.Order == b.Order && a.Client >= b.Client)
	aLeft := a.Client < b.Client || (a.Client == b.Client && a.Order <= b.Order)
	a2, b2 = grid(a.Patches, b.Patches, func(p, q model.Patch) ([]model.Patch, []model.Patch) {
		return transformPair(p, q, aWins, aLeft)
	})
	if a2 == nil {
		a2 = []model.Patch{}
	}
	if b2 == nil {
		b2 = []model.Patch{}
	}
	return a2, b2
}

// withoutNoops returns ps without identity moves, copying only when one
// is present.
func withoutNoops(ps []model.Patch) []model.Patch {
	if !slices.ContainsFunc(ps, isNoop) {
		return ps
	}
	return slices.DeleteFunc(slices.Clone(ps), isNoop)
}

// grid transforms two sequences given a transform for single elements.
// pair(x, y) must return x2, y2 with x;y2 equivalent to y;x2.
func grid[T any](a, b []T, pair func(x, y T) ([]T, []T)) ([]T, []T) {
	switch {
	case len(a) == 0 || len(b) == 0:
		return a, b
	case len(a) == 1 && len(b) == 1:
		return pair(a[0], b[0])
	case len(a) > 1:
		head, b1 := grid(a[:1], b, pair)
		rest, b2 := grid(a[1:], b1, pair)
		return slices.Concat(head, rest), b2
	default:
		a1, head := grid(a, b[:1], pair)
		a2, rest := grid(a1, b[1:], pair)
		return a2, slices.Concat(head, rest)
	}
}

// transformPair resolves one patch from each side. pWins and pLeft are
// the tie-break outcomes for p's side.
func transformPair(p, q model.Patch, pWins, pLeft bool) ([]model.Patch, []model.Patch) {
	pp, qp := p.Target(), q.Target()
	switch {
	case pp.Equal(qp):
		return sameTarget(p, q, pWins, pLeft)
	case pp.HasPrefix(qp):
		return underneath(p, q)
	case qp.HasPrefix(pp):
		q2, p2 := underneath(q, p)
		return p2, q2
	default:
		return keep(p), keep(q)
	}
}

// underneath handles p targeting a strict descendant of q's target.
func underneath(p, q model.Patch) ([]model.Patch, []model.Patch) {
	switch {
	case q.Kind().IsWrite():
		// q replaces or removes the subtree p edits.
		return nil, keep(q)
	case q.Kind().IsList():
		depth := len(q.Target())
		k, ok := p.Target().IndexAt(depth)
		if !ok {
			return keep(p), keep(q)
		}
		k2, alive := remapIndex(q, k)
		if !alive {
			return nil, keep(q)
		}
		if k2 == k {
			return keep(p), keep(q)
		}
		return keep(p.WithTarget(p.Target().WithIndexAt(depth, k2))), keep(q)
	default:
		// A path below a string cannot both be valid.
		return keep(p), keep(q)
	}
}

// remapIndex returns where element k of the list ends up after the list
// patch q, or alive=false when q removes it.
func remapIndex(q model.Patch, k int) (int, bool) {
	switch v := q.(type) {
	case model.InsertListItem:
		if k >= v.Index {
			return k + 1, true
		}
		return k, true
	case model.RemoveListItem:
		switch {
		case k == v.Index:
			return 0, false
		case k > v.Index:
			return k - 1, true
		}
		return k, true
	case model.MoveListItem:
		if v.From == v.To {
			return k, true
		}
		if k == v.From {
			return v.To, true
		}
		if k > v.From {
			k--
		}
		if k >= v.To {
			k++
		}
		return k, true
	}
	return k, true
}

func keep(p model.Patch) []model.Patch {
	return []model.Patch{p}
}
