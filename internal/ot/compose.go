package ot

import (
	"slices"
	"unicode/utf8"

	"github.com/roach88/otcore/internal/model"
)

// Compose returns a single sequence equivalent to applying first and then
// second. Neither input is modified.
//
// The result is simplified: writes shadowed by a later write to the same
// or an ancestor path are dropped, edits below a SetField are folded into
// its value, adjacent splices of one string are merged and
// identity moves disappear.
func Compose(first, second []model.Patch) []model.Patch {
	out := slices.Concat(first, second)
	out = slices.DeleteFunc(out, isNoop)
	for {
		next, changed := composePass(out)
		if !changed {
			if next == nil {
				return []model.Patch{}
			}
			return next
		}
		out = next
	}
}

// ComposeAll folds Compose over a list of committed operations.
func ComposeAll(ops []model.CommittedOperation) []model.Patch {
	out := []model.Patch{}
	for _, op := range ops {
		out = Compose(out, op.Patches)
	}
	return out
}

// composePass merges the first adjacent pair it can and reports whether
// anything changed.
func composePass(ps []model.Patch) ([]model.Patch, bool) {
	for i := 0; i+1 < len(ps); i++ {
		merged, ok := composePair(ps[i], ps[i+1])
		if !ok {
			continue
		}
		out := make([]model.Patch, 0, len(ps))
		out = append(out, ps[:i]...)
		for _, m := range merged {
			if !isNoop(m) {
				out = append(out, m)
			}
		}
		out = append(out, ps[i+2:]...)
		return out, true
	}
	return ps, false
}

// composePair tries to replace a;b with an equivalent shorter sequence.
func composePair(a, b model.Patch) ([]model.Patch, bool) {
	at, bt := a.Target(), b.Target()

	// b overwrites or removes everything a touched.
	if b.Kind().IsWrite() && at.HasPrefix(bt) {
		return keep(b), true
	}

	if s, ok := a.(model.SetField); ok && bt.HasPrefix(at) {
		rel := bt[len(at):]
		folded, err := applyValue(s.Value, b.WithTarget(rel))
		if err == nil {
			return keep(model.SetField{Path: s.Path, Value: folded}), true
		}
		return nil, false
	}

	sa, aok := a.(model.SpliceText)
	sb, bok := b.(model.SpliceText)
	if aok && bok && at.Equal(bt) {
		return mergeSplices(sa, sb)
	}
	return nil, false
}

// mergeSplices merges b into a when b stays within the text a inserted:
// it starts inside or right after it and deletes none of the text that
// follows. A merged delete reaching past a's text would move concurrent
// inserts inside that range to the left of a's text.
func mergeSplices(a, b model.SpliceText) ([]model.Patch, bool) {
	ins := []rune(a.Text)
	n := len(ins)
	if b.Index < a.Index || b.Index > a.Index+n {
		return nil, false
	}
	start := b.Index - a.Index
	end := min(start+b.DeleteCount, n)
	if b.DeleteCount > end-start {
		return nil, false
	}

	text := make([]rune, 0, n+utf8.RuneCountInString(b.Text))
	text = append(text, ins[:start]...)
	text = append(text, []rune(b.Text)...)
	text = append(text, ins[end:]...)
	return keep(model.SpliceText{
		Path:        a.Path,
		Index:       a.Index,
		DeleteCount: a.DeleteCount,
		Text:        string(text),
	}), true
}

// isNoop reports identity moves.
func isNoop(p model.Patch) bool {
	m, ok := p.(model.MoveListItem)
	return ok && m.From == m.To
}
