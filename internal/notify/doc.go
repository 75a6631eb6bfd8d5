// Package notify delivers committed operations to subscribers.
//
// Two Notifier implementations share one contract: a subscription yields
// the object's operations after a starting revision in revision order,
// each exactly once, until its context ends.
//
//   - Hub pushes live publications through per-subscriber queues and
//     back-fills anything it missed from the revision log.
//   - Poller re-reads the log at a fixed interval.
//
// RedisRelay extends a Hub across server instances and KafkaPublisher
// emits commit events for downstream consumers. Neither is on the
// correctness path: the log stays the source of truth.
package notify
