package ratelimit

import (
	"context"

	"quotagate/internal/quota"
)

// EndpointLimiter gates all traffic to one endpoint on one node
type EndpointLimiter interface {
	Consume() bool
}

// ClientLimiter decides whether a client may call an endpoint
type ClientLimiter interface {
	Consume(ctx context.Context, api, verb, clientID string) (bool, error)
}

// RecordGetter is the read side of the quota store. The decision path
// never writes state.
type RecordGetter interface {
	Get(ctx context.Context, hashKey, clientID string) (*quota.Record, error)
}

// Publisher hands a throttle event off for delivery. It must not block the
// caller on network I/O.
type Publisher interface {
	Publish(ev quota.ThrottleEvent)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ev quota.ThrottleEvent)

func (f PublisherFunc) Publish(ev quota.ThrottleEvent) { f(ev) }
