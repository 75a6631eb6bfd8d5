package notify

import (
	"context"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/store"
)

// follower delivers one object's operations to a consumer in revision
// order, skipping anything at or below the last delivered revision and
// back-filling gaps from the log.
type follower struct {
	ctx   context.Context
	log   store.Adapter
	id    model.ObjectID
	last  int64
	yield func(model.CommittedOperation, error) bool
}

func newFollower(ctx context.Context, log store.Adapter, id model.ObjectID, from int64, yield func(model.CommittedOperation, error) bool) *follower {
	if from < 0 {
		from = 0
	}
	return &follower{ctx: ctx, log: log, id: id, last: from, yield: yield}
}

// catchUp delivers every logged operation after the last delivered one.
// It returns false when the consumer should stop.
func (f *follower) catchUp() bool {
	ops, err := f.log.ListCommittedSince(f.ctx, f.id, f.last)
	if err != nil {
		if f.ctx.Err() != nil {
			return false
		}
		f.yield(model.CommittedOperation{}, err)
		return false
	}
	for _, op := range ops {
		if op.Revision <= f.last {
			continue
		}
		f.last = op.Revision
		if !f.yield(op, nil) {
			return false
		}
	}
	return true
}

// deliver hands a live operation to the consumer.
func (f *follower) deliver(op model.CommittedOperation) bool {
	switch {
	case op.Revision <= f.last:
		return true
	case op.Revision > f.last+1:
		// Missed publications; the log has them, op included.
		return f.catchUp()
	}
	f.last = op.Revision
	return f.yield(op, nil)
}
