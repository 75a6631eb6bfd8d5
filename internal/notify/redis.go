package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/roach88/otcore/internal/model"
)

const channelPattern = "otcore:ops:*"

// Channel returns the pub/sub channel carrying a tenant's operations.
// The braces make it a cluster hash tag.
func Channel(tenant string) string {
	return fmt.Sprintf("otcore:ops:{%s}", tenant)
}

type envelope struct {
	Origin string                   `json:"origin"`
	Op     model.CommittedOperation `json:"op"`
}

// RedisRelay fans commits out across server instances. Local commits go
// to the local Hub and to Redis; Run relays other instances' commits
// into the same Hub. Subscribers read from the Hub, which de-duplicates
// by revision.
type RedisRelay struct {
	client redis.UniversalClient
	local  *Hub
	origin string
	logger *zap.Logger
}

// NewRedisRelay creates a relay bound to the local hub.
func NewRedisRelay(client redis.UniversalClient, local *Hub, opts ...Option) *RedisRelay {
	o := buildOptions(opts)
	return &RedisRelay{
		client: client,
		local:  local,
		origin: uuid.NewString(),
		logger: o.logger,
	}
}

// Publish delivers op locally, then announces it to other instances.
func (r *RedisRelay) Publish(ctx context.Context, op model.CommittedOperation) error {
	if err := r.local.Publish(ctx, op); err != nil {
		return err
	}
	payload, err := json.Marshal(envelope{Origin: r.origin, Op: op})
	if err != nil {
		return fmt.Errorf("encode operation: %w", err)
	}
	if err := r.client.Publish(ctx, Channel(op.ObjectID.Tenant), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", op.ObjectID, err)
	}
	return nil
}

// Subscribe implements Notifier by reading the local hub.
func (r *RedisRelay) Subscribe(ctx context.Context, id model.ObjectID, from int64) iter.Seq2[model.CommittedOperation, error] {
	return r.local.Subscribe(ctx, id, from)
}

// Run relays remote publications until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	ps := r.client.PSubscribe(ctx, channelPattern)
	defer ps.Close()

	// Wait for the subscription confirmation so no message is lost
	// between Run starting and the first publish.
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	r.logger.Info("redis relay subscribed", zap.String("pattern", channelPattern))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

// handle relays one pub/sub payload into the local hub, ignoring this
// instance's own publications.
func (r *RedisRelay) handle(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("dropping undecodable relay message", zap.Error(err))
		return
	}
	if env.Origin == r.origin {
		return
	}
	if err := r.local.Publish(ctx, env.Op); err != nil {
		r.logger.Warn("relay publish failed",
			zap.String("object", env.Op.ObjectID.String()),
			zap.Int64("revision", env.Op.Revision),
			zap.Error(err),
		)
	}
}
