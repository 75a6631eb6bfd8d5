package ot

import (
	"unicode/utf8"

	"github.com/roach88/otcore/internal/model"
)

// textStep is a primitive text edit: insert text at index, or delete
// count code points starting at index.
type textStep struct {
	insert bool
	index  int
	count  int
	text   string
}

func textSteps(s model.SpliceText) []textStep {
	var steps []textStep
	if s.DeleteCount > 0 {
		steps = append(steps, textStep{index: s.Index, count: s.DeleteCount})
	}
	if s.Text != "" {
		steps = append(steps, textStep{insert: true, index: s.Index, text: s.Text, count: utf8.RuneCountInString(s.Text)})
	}
	return steps
}

// fromTextSteps turns steps back into splices on path, merging a delete
// directly followed by an insert at the same index.
func fromTextSteps(path model.Path, steps []textStep) []model.Patch {
	var out []model.Patch
	for i := 0; i < len(steps); i++ {
		s := steps[i]
		if s.insert {
			out = append(out, model.SpliceText{Path: path, Index: s.index, Text: s.text})
			continue
		}
		sp := model.SpliceText{Path: path, Index: s.index, DeleteCount: s.count}
		if i+1 < len(steps) && steps[i+1].insert && steps[i+1].index == s.index {
			sp.Text = steps[i+1].text
			i++
		}
		out = append(out, sp)
	}
	return out
}

func textText(p, q model.Patch, _, pLeft bool) ([]model.Patch, []model.Patch) {
	ps, qs := p.(model.SpliceText), q.(model.SpliceText)
	a, b := grid(textSteps(ps), textSteps(qs), func(x, y textStep) ([]textStep, []textStep) {
		return transformTextStep(x, y, pLeft)
	})
	return fromTextSteps(ps.Path, a), fromTextSteps(qs.Path, b)
}

func transformTextStep(a, b textStep, aLeft bool) ([]textStep, []textStep) {
	switch {
	case a.insert && b.insert:
		if a.index < b.index || (a.index == b.index && aLeft) {
			return one(a), one(moveText(b, a.count))
		}
		return one(moveText(a, b.count)), one(b)

	case a.insert && !b.insert:
		switch {
		case a.index <= b.index:
			return one(a), one(moveText(b, a.count))
		case a.index >= b.index+b.count:
			return one(moveText(a, -b.count)), one(b)
		}
		// The insert lands inside the deleted range: it survives at the
		// start of the range and the delete is split around it.
		before := a.index - b.index
		a.index = b.index
		return one(a), []textStep{
			{index: b.index, count: before},
			{index: b.index + a.count, count: b.count - before},
		}

	case !a.insert && b.insert:
		b2, a2 := transformTextStep(b, a, !aLeft)
		return a2, b2

	default:
		return deleteAfterDelete(a, b), deleteAfterDelete(b, a)
	}
}

// deleteAfterDelete rewrites a to apply after b has already run.
// Characters b removed are not deleted again.
func deleteAfterDelete(a, b textStep) []textStep {
	overlap := min(a.index+a.count, b.index+b.count) - max(a.index, b.index)
	if overlap < 0 {
		overlap = 0
	}
	switch {
	case a.index < b.index:
	case a.index >= b.index+b.count:
		a.index -= b.count
	default:
		a.index = b.index
	}
	a.count -= overlap
	if a.count == 0 {
		return nil
	}
	return one(a)
}

func moveText(s textStep, by int) textStep {
	s.index += by
	return s
}
