// Package ot implements the transform engine: applying patch sequences to
// documents, transforming concurrent sequences against each other,
// composing sequential ones and rebasing a stale submission onto the
// committed tail of an object's log.
//
// Everything here is a pure function of its arguments. Documents are
// never mutated in place; Apply returns a new document that shares
// untouched subtrees with its input.
//
// The central contract is convergence. For any state S on which both a
// and b apply cleanly:
//
//	a2, b2 := Transform(a, b)
//	Apply(Apply(S, a.Patches), b2) == Apply(Apply(S, b.Patches), a2)
//
// Same-target pairs are resolved by a rule table indexed by the two
// patch kinds. TestRules_CoverEveryKindPair keeps the table complete.
package ot
