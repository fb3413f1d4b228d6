package ratelimit

import (
	"context"
	"sync"

	"quotagate/internal/circuitbreaker"
	"quotagate/internal/common/errors"
	"quotagate/internal/common/logging"
	"quotagate/internal/metrics"
	"quotagate/internal/quota"
)

// Sender is the enqueue side of the event queue
type Sender interface {
	Send(ctx context.Context, groupID, body string) error
}

// QueuePublisher sends throttle events from background goroutines so the
// decision path never waits on the queue. Sends go through a circuit
// breaker; when MaxInFlight sends are pending new events are dropped.
type QueuePublisher struct {
	sender  Sender
	breaker *circuitbreaker.GoBreakerAdapter
	config  PublisherConfig
	logger  logging.Logger
	metrics *metrics.Metrics

	slots  chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewQueuePublisher(sender Sender, breaker *circuitbreaker.GoBreakerAdapter, config PublisherConfig, logger logging.Logger, m *metrics.Metrics) *QueuePublisher {
	config = config.withDefaults()
	if logger == nil {
		logger = logging.Component("publisher")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &QueuePublisher{
		sender:  sender,
		breaker: breaker,
		config:  config,
		logger:  logger,
		metrics: m,
		slots:   make(chan struct{}, config.MaxInFlight),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Publish starts the send and returns immediately
func (p *QueuePublisher) Publish(ev quota.ThrottleEvent) {
	select {
	case p.slots <- struct{}{}:
	default:
		p.metrics.PublishDropped()
		p.logger.Warn("Dropping throttle event, too many publishes in flight",
			logging.String("group_id", ev.GroupID()),
			logging.Int("max_in_flight", p.config.MaxInFlight),
		)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.slots }()
		if err := p.send(ev); err != nil {
			p.metrics.PublishFailed()
			p.logger.Error("Failed to publish throttle event", err,
				logging.String("group_id", ev.GroupID()),
			)
		}
	}()
}

func (p *QueuePublisher) send(ev quota.ThrottleEvent) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.Timeout)
	defer cancel()

	body := ev.Encode()
	call := func() error {
		return p.sender.Send(ctx, ev.GroupID(), body)
	}
	var err error
	if p.breaker != nil {
		err = p.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return errors.PublishError("throttle event not enqueued", err).
			WithContext("group_id", ev.GroupID())
	}
	return nil
}

// Wait blocks until every started publish has finished
func (p *QueuePublisher) Wait() {
	p.wg.Wait()
}

// Close waits for in-flight sends, each bounded by the configured timeout
func (p *QueuePublisher) Close() error {
	p.wg.Wait()
	p.cancel()
	return nil
}
