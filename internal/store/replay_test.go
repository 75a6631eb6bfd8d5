package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/otcore/internal/model"
)

// seedLog commits three revisions whose stored values match their patches.
func seedLog(t *testing.T, s Adapter) model.ObjectID {
	t.Helper()
	ctx := context.Background()
	id := freshID()
	steps := []struct {
		patch model.Patch
		value model.Object
	}{
		{
			model.SetField{Path: model.MustParsePath("grade"), Value: model.String("6a")},
			model.Object{"grade": model.String("6a")},
		},
		{
			model.InsertListItem{Path: model.MustParsePath("tags"), Index: 0, Value: model.String("crimpy")},
			model.Object{"grade": model.String("6a"), "tags": model.Array{model.String("crimpy")}},
		},
		{
			model.SetField{Path: model.MustParsePath("grade"), Value: model.String("6b")},
			model.Object{"grade": model.String("6b"), "tags": model.Array{model.String("crimpy")}},
		},
	}
	for i, step := range steps {
		_, err := s.AppendIfRevision(ctx, appendAt(id, int64(i), step.value, step.patch))
		require.NoError(t, err)
	}
	return id
}

func TestSnapshotAt(t *testing.T) {
	ctx := context.Background()
	for name, s := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			id := seedLog(t, s)

			tests := []struct {
				rev  int64
				want model.Object
			}{
				{0, model.Object{}},
				{1, model.Object{"grade": model.String("6a")}},
				{2, model.Object{"grade": model.String("6a"), "tags": model.Array{model.String("crimpy")}}},
				{3, model.Object{"grade": model.String("6b"), "tags": model.Array{model.String("crimpy")}}},
			}
			for _, tt := range tests {
				snap, err := SnapshotAt(ctx, s, id, tt.rev)
				require.NoError(t, err, "revision %d", tt.rev)
				assert.Equal(t, tt.rev, snap.Revision)
				assert.Equal(t, tt.want, snap.Value, "revision %d", tt.rev)
			}

			_, err := SnapshotAt(ctx, s, id, 4)
			assert.ErrorIs(t, err, ErrRevisionOutOfRange)
			_, err = SnapshotAt(ctx, s, id, -1)
			assert.ErrorIs(t, err, ErrRevisionOutOfRange)
		})
	}
}

func TestSnapshotAt_Missing(t *testing.T) {
	_, err := SnapshotAt(context.Background(), NewMemoryStore(), freshID(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerify_Consistent(t *testing.T) {
	for name, s := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			id := seedLog(t, s)

			state, err := Verify(context.Background(), s, id)
			require.NoError(t, err)
			assert.Equal(t, int64(3), state.Revision)
			assert.Len(t, state.Ops, 3)
			assert.Empty(t, state.Gaps)
			assert.Equal(t, model.String("6b"), state.Replayed["grade"])
		})
	}
}

func TestVerify_DetectsDivergence(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := freshID()

	// The stored value does not follow from the logged patch.
	_, err := s.AppendIfRevision(ctx, appendAt(id, 0,
		model.Object{"grade": model.String("7a")},
		model.SetField{Path: model.MustParsePath("grade"), Value: model.String("6a")}))
	require.NoError(t, err)

	_, err = Verify(ctx, s, id)
	require.ErrorIs(t, err, ErrReplayMismatch)
	assert.Contains(t, err.Error(), "7a")
}

func TestVerify_DetectsGap(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	id := seedLog(t, s)

	_, err := s.db.Exec("DELETE FROM operations WHERE object_id = ? AND revision = 2", id.String())
	require.NoError(t, err)

	state, err := Verify(ctx, s, id)
	require.ErrorIs(t, err, ErrReplayMismatch)
	assert.Equal(t, []int64{2}, state.Gaps)
}
