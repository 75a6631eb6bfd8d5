package ot

import (
	"github.com/roach88/otcore/internal/model"
)

// listStep is a primitive list edit. A move is a remove of the element
// followed by an insert of the same element.
type listStep struct {
	insert bool
	index  int
}

func listSteps(p model.Patch) []listStep {
	switch v := p.(type) {
	case model.InsertListItem:
		return []listStep{{insert: true, index: v.Index}}
	case model.RemoveListItem:
		return []listStep{{index: v.Index}}
	case model.MoveListItem:
		return []listStep{{index: v.From}, {insert: true, index: v.To}}
	}
	return nil
}

// fromListSteps reassembles transformed steps into a patch of p's kind.
func fromListSteps(p model.Patch, steps []listStep) []model.Patch {
	switch v := p.(type) {
	case model.InsertListItem:
		if len(steps) == 1 {
			v.Index = steps[0].index
			return keep(v)
		}
	case model.RemoveListItem:
		if len(steps) == 1 {
			v.Index = steps[0].index
			return keep(v)
		}
	case model.MoveListItem:
		if len(steps) == 2 {
			v.From, v.To = steps[0].index, steps[1].index
			if v.From == v.To {
				return nil
			}
			return keep(v)
		}
	}
	return nil
}

// listList transforms two structural edits of the same list.
func listList(p, q model.Patch, pWins, pLeft bool) ([]model.Patch, []model.Patch) {
	pm, pIsMove := p.(model.MoveListItem)
	qm, qIsMove := q.(model.MoveListItem)
	switch {
	case pIsMove && qIsMove && pm.From == qm.From:
		if pWins {
			return movedTwice(pm, qm), nil
		}
		return nil, movedTwice(qm, pm)
	case pIsMove && isRemoveOf(q, pm.From):
		return nil, keep(model.RemoveListItem{Path: pm.Path, Index: pm.To})
	case qIsMove && isRemoveOf(p, qm.From):
		return keep(model.RemoveListItem{Path: qm.Path, Index: qm.To}), nil
	}

	ps, qs := grid(listSteps(p), listSteps(q), func(a, b listStep) ([]listStep, []listStep) {
		return transformListStep(a, b, pLeft)
	})
	return fromListSteps(p, ps), fromListSteps(q, qs)
}

// movedTwice carries the element from where the loser put it to where
// the winner wants it.
func movedTwice(winner, loser model.MoveListItem) []model.Patch {
	if loser.To == winner.To {
		return nil
	}
	return keep(model.MoveListItem{Path: winner.Path, From: loser.To, To: winner.To})
}

func isRemoveOf(p model.Patch, index int) bool {
	r, ok := p.(model.RemoveListItem)
	return ok && r.Index == index
}

func transformListStep(a, b listStep, aLeft bool) ([]listStep, []listStep) {
	switch {
	case a.insert && b.insert:
		if a.index < b.index || (a.index == b.index && aLeft) {
			return one(a), one(shiftStep(b, 1))
		}
		return one(shiftStep(a, 1)), one(b)
	case a.insert && !b.insert:
		if a.index <= b.index {
			return one(a), one(shiftStep(b, 1))
		}
		return one(shiftStep(a, -1)), one(b)
	case !a.insert && b.insert:
		b2, a2 := transformListStep(b, a, !aLeft)
		return a2, b2
	default:
		switch {
		case a.index == b.index:
			return nil, nil
		case a.index < b.index:
			return one(a), one(shiftStep(b, -1))
		default:
			return one(shiftStep(a, -1)), one(b)
		}
	}
}

func shiftStep(s listStep, by int) listStep {
	s.index += by
	return s
}

func one[T any](v T) []T {
	return []T{v}
}
