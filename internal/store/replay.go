package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/ot"
)

// ErrReplayMismatch means the stored current state differs from the
// replay of the object's log.
var ErrReplayMismatch = errors.New("replay does not match stored state")

// ErrRevisionOutOfRange means a requested revision is negative or ahead
// of the object.
var ErrRevisionOutOfRange = errors.New("revision out of range")

// LogState is the result of checking an object's log against its
// current-state record.
type LogState struct {
	ObjectID model.ObjectID
	Revision int64                      // current revision of the stored record
	Ops      []model.CommittedOperation // full log in revision order
	Replayed model.Object               // value rebuilt from Ops
	Gaps     []int64                    // revisions missing from the log
}

// SnapshotAt rebuilds the object's value as of revision by replaying its
// log. revision 0 is the empty document.
func SnapshotAt(ctx context.Context, a Adapter, id model.ObjectID, revision int64) (model.Snapshot, error) {
	if revision == 0 {
		return model.Snapshot{ObjectID: id, Revision: 0, Value: model.EmptyDocument()}, nil
	}
	current, err := a.Get(ctx, id)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot at %d: %w", revision, err)
	}
	if revision < 0 || revision > current.Revision {
		return model.Snapshot{}, fmt.Errorf("snapshot at %d: %w [0, %d]", revision, ErrRevisionOutOfRange, current.Revision)
	}
	if revision == current.Revision {
		return current, nil
	}

	ops, err := a.ListCommittedSince(ctx, id, 0)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot at %d: %w", revision, err)
	}
	upTo := ops[:0:0]
	for _, op := range ops {
		if op.Revision <= revision {
			upTo = append(upTo, op)
		}
	}
	doc, err := ot.Replay(upTo)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("snapshot at %d: %w", revision, err)
	}
	return model.Snapshot{ObjectID: id, Revision: revision, Value: doc}, nil
}

// Verify replays the whole log of id and compares the result with the
// stored current state. A divergence or a gap in the log is reported as
// ErrReplayMismatch together with the LogState for inspection.
func Verify(ctx context.Context, a Adapter, id model.ObjectID) (LogState, error) {
	state := LogState{ObjectID: id}

	current, err := a.Get(ctx, id)
	if err != nil {
		return state, fmt.Errorf("verify %s: %w", id, err)
	}
	state.Revision = current.Revision

	ops, err := a.ListCommittedSince(ctx, id, 0)
	if err != nil {
		return state, fmt.Errorf("verify %s: %w", id, err)
	}
	state.Ops = ops

	next := int64(1)
	for _, op := range ops {
		for ; next < op.Revision; next++ {
			state.Gaps = append(state.Gaps, next)
		}
		next = op.Revision + 1
	}
	for ; next <= current.Revision; next++ {
		state.Gaps = append(state.Gaps, next)
	}
	if len(state.Gaps) > 0 {
		return state, fmt.Errorf("verify %s: log is missing revisions %v: %w", id, state.Gaps, ErrReplayMismatch)
	}

	replayed, err := ot.Replay(ops)
	if err != nil {
		return state, fmt.Errorf("verify %s: %w", id, err)
	}
	state.Replayed = replayed

	if diff := cmp.Diff(current.Value, replayed); diff != "" {
		return state, fmt.Errorf("verify %s (-stored +replayed):\n%s: %w", id, diff, ErrReplayMismatch)
	}
	return state, nil
}
