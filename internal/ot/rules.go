package ot

import (
	"fmt"

	"github.com/roach88/otcore/internal/model"
)

// rule resolves two patches with the same target path.
type rule func(p, q model.Patch, pWins, pLeft bool) ([]model.Patch, []model.Patch)

type kindPair struct {
	p, q model.PatchKind
}

var (
	kSet = model.KindSetField
	kDel = model.KindDeleteField
	kIns = model.KindInsertListItem
	kRem = model.KindRemoveListItem
	kMov = model.KindMoveListItem
	kSpl = model.KindSpliceText
)

// rules holds one entry per ordered kind pair.
var rules = map[kindPair]rule{
	{kSet, kSet}: writeWrite,
	{kSet, kDel}: writeWrite,
	{kSet, kIns}: writeOverEdit,
	{kSet, kRem}: writeOverEdit,
	{kSet, kMov}: writeOverEdit,
	{kSet, kSpl}: writeOverEdit,

	{kDel, kSet}: writeWrite,
	{kDel, kDel}: writeWrite,
	{kDel, kIns}: writeOverEdit,
	{kDel, kRem}: writeOverEdit,
	{kDel, kMov}: writeOverEdit,
	{kDel, kSpl}: writeOverEdit,

	{kIns, kSet}: editUnderWrite,
	{kIns, kDel}: editUnderWrite,
	{kIns, kIns}: listList,
	{kIns, kRem}: listList,
	{kIns, kMov}: listList,
	{kIns, kSpl}: passThrough,

	{kRem, kSet}: editUnderWrite,
	{kRem, kDel}: editUnderWrite,
	{kRem, kIns}: listList,
	{kRem, kRem}: listList,
	{kRem, kMov}: listList,
	{kRem, kSpl}: passThrough,

	{kMov, kSet}: editUnderWrite,
	{kMov, kDel}: editUnderWrite,
	{kMov, kIns}: listList,
	{kMov, kRem}: listList,
	{kMov, kMov}: listList,
	{kMov, kSpl}: passThrough,

	{kSpl, kSet}: editUnderWrite,
	{kSpl, kDel}: editUnderWrite,
	{kSpl, kIns}: passThrough,
	{kSpl, kRem}: passThrough,
	{kSpl, kMov}: passThrough,
	{kSpl, kSpl}: textText,
}

func sameTarget(p, q model.Patch, pWins, pLeft bool) ([]model.Patch, []model.Patch) {
	r, ok := rules[kindPair{p.Kind(), q.Kind()}]
	if !ok {
		panic(fmt.Sprintf("ot: no transform rule for %s x %s", p.Kind(), q.Kind()))
	}
	return r(p, q, pWins, pLeft)
}

// writeWrite keeps the winner. Applied after the loser it overwrites it;
// the loser applied after the winner would undo it, so it is dropped.
// Two deletes follow the same rule: the surviving delete finds the key
// gone and does nothing, but it still shadows later writes to the path.
func writeWrite(p, q model.Patch, pWins, _ bool) ([]model.Patch, []model.Patch) {
	if pWins {
		return keep(p), nil
	}
	return nil, keep(q)
}

func writeOverEdit(p, q model.Patch, _, _ bool) ([]model.Patch, []model.Patch) {
	return keep(p), nil
}

func editUnderWrite(p, q model.Patch, _, _ bool) ([]model.Patch, []model.Patch) {
	return nil, keep(q)
}

// passThrough keeps both patches. A list edit and a text edit of the
// same path cannot both apply to one state, so neither needs adjusting.
func passThrough(p, q model.Patch, _, _ bool) ([]model.Patch, []model.Patch) {
	return keep(p), keep(q)
}
