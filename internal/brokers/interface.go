// Package brokers defines the at-least-once event queue that carries
// throttle events from every node to the elected consumer.
package brokers

import "context"

// Queue is an at-least-once message queue with explicit deletion.
// Messages received but not deleted become visible again later.
type Queue interface {
	// Send enqueues body. groupID orders messages on FIFO queues.
	Send(ctx context.Context, groupID, body string) error
	// ReceiveBatch returns up to max visible messages; an empty slice means none.
	ReceiveBatch(ctx context.Context, max int) ([]Message, error)
	// DeleteBatch removes received messages and reports the ones that
	// could not be removed. The error is reserved for whole-call failures.
	DeleteBatch(ctx context.Context, messages []Message) ([]DeleteFailure, error)
	Close() error
}

// HealthChecker is implemented by queues with a reachable backend
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Message struct {
	// ID is stable across redeliveries
	ID            string
	ReceiptHandle string
	Body          string
}

type DeleteFailure struct {
	ID     string
	Code   string
	Reason string
}
