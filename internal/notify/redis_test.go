package notify

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/otcore/internal/store"
)

func TestChannel(t *testing.T) {
	assert.Equal(t, "otcore:ops:{gym}", Channel("gym"))
}

func TestRedisRelay_Handle(t *testing.T) {
	h := NewHub(store.NewMemoryStore())
	r := NewRedisRelay(nil, h)
	ctx := context.Background()

	own, err := json.Marshal(envelope{Origin: r.origin, Op: committedOp(1)})
	require.NoError(t, err)
	r.handle(ctx, string(own))
	assert.Zero(t, h.in.Len(), "own publications are not relayed")

	r.handle(ctx, "{not json")
	assert.Zero(t, h.in.Len())

	remote, err := json.Marshal(envelope{Origin: "other-instance", Op: committedOp(2)})
	require.NoError(t, err)
	r.handle(ctx, string(remote))
	require.Equal(t, 1, h.in.Len())

	op, _ := h.in.TryDequeue()
	assert.Equal(t, committedOp(2).Revision, op.Revision)
	assert.Equal(t, wall, op.ObjectID)
	assert.Equal(t, "op-2", op.OperationID)
}

// TestRedisRelay_AcrossInstances needs a live server:
// OTCORE_TEST_REDIS_ADDR=127.0.0.1:6379.
func TestRedisRelay_AcrossInstances(t *testing.T) {
	addr := os.Getenv("OTCORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("OTCORE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	// Two instances sharing one log.
	s := store.NewMemoryStore()
	hubA, hubB := startHub(t, s), startHub(t, s)
	relayA, relayB := NewRedisRelay(client, hubA), NewRedisRelay(client, hubB)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = relayB.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	got := make(chan []int64, 1)
	go func() { got <- take(t, relayB.Subscribe(timeout(t), wall, 0), 2) }()
	waitSubscribers(t, hubB, 1)

	for _, op := range commitN(t, s, wall, 2) {
		require.NoError(t, relayA.Publish(ctx, op))
	}
	assert.Equal(t, []int64{1, 2}, <-got)
}
