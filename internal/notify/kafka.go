package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/roach88/otcore/internal/model"
)

// EventOpCommitted is the event type of every Kafka commit event.
const EventOpCommitted = "OP_COMMITTED"

// ErrQueueFull is returned when an event cannot be queued before the
// enqueue timeout.
var ErrQueueFull = errors.New("kafka publish queue full")

// CommitEvent is the Kafka message value for one commit.
type CommitEvent struct {
	EventType    string        `json:"event_type"`
	ObjectID     string        `json:"object_id"`
	Tenant       string        `json:"tenant"`
	Revision     int64         `json:"revision"`
	BaseRevision int64         `json:"base_revision"`
	OperationID  string        `json:"operation_id"`
	Author       string        `json:"author"`
	Patches      model.Patches `json:"patches"`
	CommittedAt  time.Time     `json:"committed_at"`
}

// NewCommitEvent builds the event for op.
func NewCommitEvent(op model.CommittedOperation) CommitEvent {
	return CommitEvent{
		EventType:    EventOpCommitted,
		ObjectID:     op.ObjectID.String(),
		Tenant:       op.ObjectID.Tenant,
		Revision:     op.Revision,
		BaseRevision: op.BaseRevision,
		OperationID:  op.OperationID,
		Author:       op.Author,
		Patches:      op.Patches,
		CommittedAt:  op.CommittedAt,
	}
}

// KafkaOptions tunes a KafkaPublisher. Zero fields take defaults.
type KafkaOptions struct {
	QueueSize      int
	Workers        int
	MaxRetry       int // negative disables retries
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	EnqueueTimeout time.Duration
	Logger         *zap.Logger
}

func (o KafkaOptions) withDefaults() KafkaOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.MaxRetry < 0 {
		o.MaxRetry = 0
	} else if o.MaxRetry == 0 {
		o.MaxRetry = 3
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 100 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 2 * time.Second
	}
	if o.EnqueueTimeout <= 0 {
		o.EnqueueTimeout = 50 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// KafkaPublisher emits a CommitEvent per commit, keyed by object id so a
// partition sees one object's revisions in order.
//
// Publish only enqueues; workers send with bounded retries. When Kafka
// stalls long enough to fill the queue, Publish fails with ErrQueueFull
// and the event is dropped. Events are a best-effort side channel; the
// log stays authoritative.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	opts     KafkaOptions

	mu     sync.RWMutex
	closed bool
	queue  chan CommitEvent
	wg     sync.WaitGroup
}

// NewKafkaPublisher starts the workers.
func NewKafkaPublisher(producer sarama.SyncProducer, topic string, opts KafkaOptions) *KafkaPublisher {
	opts = opts.withDefaults()
	k := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		opts:     opts,
		queue:    make(chan CommitEvent, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		k.wg.Add(1)
		go k.worker(i)
	}
	return k
}

// Publish queues the commit event for op.
func (k *KafkaPublisher) Publish(ctx context.Context, op model.CommittedOperation) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrClosed
	}

	timer := time.NewTimer(k.opts.EnqueueTimeout)
	defer timer.Stop()

	select {
	case k.queue <- NewCommitEvent(op):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: %s revision %d", ErrQueueFull, op.ObjectID, op.Revision)
	}
}

// Close stops accepting events and waits for queued ones to be sent or
// dropped. It does not close the producer.
func (k *KafkaPublisher) Close() {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return
	}
	k.closed = true
	close(k.queue)
	k.mu.Unlock()

	k.wg.Wait()
}

func (k *KafkaPublisher) worker(id int) {
	defer k.wg.Done()
	for evt := range k.queue {
		if err := k.sendWithRetry(evt); err != nil {
			k.opts.Logger.Warn("kafka send failed, dropping event",
				zap.String("object", evt.ObjectID),
				zap.Int64("revision", evt.Revision),
				zap.Int("worker", id),
				zap.Error(err),
			)
		}
	}
}

func (k *KafkaPublisher) sendWithRetry(evt CommitEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return backoff.Permanent(err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(evt.ObjectID),
		Value: sarama.ByteEncoder(value),
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(k.opts.BaseBackoff),
		backoff.WithMaxInterval(k.opts.MaxBackoff),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.Retry(func() error {
		_, _, err := k.producer.SendMessage(msg)
		return err
	}, backoff.WithMaxRetries(b, uint64(k.opts.MaxRetry)))
}
