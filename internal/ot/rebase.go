package ot

import (
	"fmt"
	"math"

	"github.com/roach88/otcore/internal/model"
)

// SubmissionOrder is the priority of a submission being rebased. It sorts
// after every committed revision, so on a same-field write conflict the
// submission that commits later wins.
const SubmissionOrder = math.MaxInt64

// Rebase transforms patches, written by client against the state before
// tail, so that they apply after every operation in tail. tail must be in
// revision order.
func Rebase(patches []model.Patch, client string, tail []model.CommittedOperation) []model.Patch {
	out := patches
	for _, op := range tail {
		out, _ = Transform(
			Side{Patches: out, Order: SubmissionOrder, Client: client},
			Side{Patches: op.Patches, Order: op.Revision, Client: op.Author},
		)
		if len(out) == 0 {
			break
		}
	}
	if out == nil {
		return []model.Patch{}
	}
	return out
}

// Replay rebuilds a document by applying ops in order to the empty document.
func Replay(ops []model.CommittedOperation) (model.Object, error) {
	return ReplayOnto(model.EmptyDocument(), ops)
}

// ReplayOnto applies ops in order to doc.
func ReplayOnto(doc model.Object, ops []model.CommittedOperation) (model.Object, error) {
	cur := doc
	for _, op := range ops {
		next, err := Apply(cur, op.Patches)
		if err != nil {
			return nil, fmt.Errorf("replay revision %d: %w", op.Revision, err)
		}
		cur = next
	}
	return cur, nil
}
