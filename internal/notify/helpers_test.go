package notify

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/store"
	"github.com/roach88/otcore/internal/testutil"
)

var wall = model.MustObjectID("gym", model.TypeBoulder, "wall-7")

// commitN appends n revisions to id, each setting "n" to its revision.
func commitN(t *testing.T, s store.Adapter, id model.ObjectID, n int) []model.CommittedOperation {
	t.Helper()
	ctx := context.Background()

	var rev int64
	snap, err := s.Get(ctx, id)
	switch {
	case err == nil:
		rev = snap.Revision
	case errors.Is(err, store.ErrNotFound):
	default:
		require.NoError(t, err)
	}

	out := make([]model.CommittedOperation, 0, n)
	for i := 0; i < n; i++ {
		next := rev + 1
		a := store.Append{
			ObjectID:         id,
			ExpectedRevision: rev,
			BaseRevision:     rev,
			Patches:          []model.Patch{model.SetField{Path: model.Path{"n"}, Value: model.Int(next)}},
			Value:            model.Object{"n": model.Int(next)},
			Author:           "client-1",
			CommittedAt:      testutil.Epoch,
			OperationID:      fmt.Sprintf("op-%d", next),
		}
		got, err := s.AppendIfRevision(ctx, a)
		require.NoError(t, err)
		rev = got
		out = append(out, a.Committed(got))
	}
	return out
}

// take reads up to n operations from seq, stopping early when the
// sequence ends. It fails the test on a yielded error.
func take(t *testing.T, seq iter.Seq2[model.CommittedOperation, error], n int) []int64 {
	t.Helper()
	var revs []int64
	if n == 0 {
		return revs
	}
	for op, err := range seq {
		require.NoError(t, err)
		revs = append(revs, op.Revision)
		if len(revs) == n {
			break
		}
	}
	return revs
}

func revisions(from, to int64) []int64 {
	var out []int64
	for r := from; r <= to; r++ {
		out = append(out, r)
	}
	return out
}

func timeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// brokenLog fails every read.
type brokenLog struct {
	store.Adapter
	err error
}

func (b brokenLog) ListCommittedSince(context.Context, model.ObjectID, int64) ([]model.CommittedOperation, error) {
	return nil, b.err
}

type recordingPublisher struct {
	ops []model.CommittedOperation
	err error
}

func (r *recordingPublisher) Publish(_ context.Context, op model.CommittedOperation) error {
	r.ops = append(r.ops, op)
	return r.err
}
