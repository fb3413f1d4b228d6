// Package consumer drains throttle events from the queue and folds them
// into the shared quota records. Only the elected leader does any work.
package consumer

import (
	"context"
	stderrors "errors"
	"time"

	"quotagate/internal/brokers"
	"quotagate/internal/common/cache"
	"quotagate/internal/common/distributed"
	"quotagate/internal/common/errors"
	"quotagate/internal/common/logging"
	"quotagate/internal/metrics"
	"quotagate/internal/quota"
	"quotagate/internal/storage"
)

const (
	DefaultBatchSize = 10
	DefaultDedupTTL  = 5 * time.Minute
)

// Result summarises one pass
type Result struct {
	// Skipped is set when this node is not the leader
	Skipped        bool
	Received       int
	Applied        int
	Duplicates     int
	Poison         int
	MissingRecords int
	RecordsWritten int
	// Deferred messages stay on the queue for redelivery: their record
	// could not be read or written
	Deferred       int
	Deleted        int
	DeleteFailures int
}

type Consumer struct {
	queue     brokers.Queue
	store     storage.QuotaStore
	elector   distributed.Elector
	seen      cache.Cache
	dedupTTL  time.Duration
	batchSize int
	logger    logging.Logger
	metrics   *metrics.Metrics
}

type Option func(*Consumer)

// WithDedup skips messages whose id was already applied within ttl
func WithDedup(seen cache.Cache, ttl time.Duration) Option {
	return func(c *Consumer) {
		c.seen = seen
		if ttl > 0 {
			c.dedupTTL = ttl
		}
	}
}

func WithBatchSize(n int) Option {
	return func(c *Consumer) {
		if n > 0 && n <= DefaultBatchSize {
			c.batchSize = n
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *Consumer) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Consumer) { c.metrics = m }
}

func New(queue brokers.Queue, store storage.QuotaStore, elector distributed.Elector, opts ...Option) *Consumer {
	c := &Consumer{
		queue:     queue,
		store:     store,
		elector:   elector,
		dedupTTL:  DefaultDedupTTL,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Component("consumer")
	}
	return c
}

// batch is the state of one pass. Records are read at most once and later
// events see the merges of earlier ones.
type batch struct {
	records map[string]*quota.Record
	missing map[string]bool
	// unreadable records keep all their events queued, so a redelivered
	// event is never merged after a later one
	unreadable map[string]bool
	order      []string
	ids        map[string]bool
	// settled can be deleted whatever happens to the write
	settled []brokers.Message
	// applied can be deleted only once their record is written
	applied []appliedMessage
}

type appliedMessage struct {
	msg brokers.Message
	key string
}

// ProcessBatch runs one pass: receive, merge, write, delete. Failures are
// returned for logging; messages that were not applied stay on the queue
// for redelivery.
func (c *Consumer) ProcessBatch(ctx context.Context) (Result, error) {
	leader := c.elector.IsLeader(ctx)
	c.metrics.SetLeader(leader)
	if !leader {
		return Result{Skipped: true}, nil
	}

	msgs, err := c.queue.ReceiveBatch(ctx, c.batchSize)
	if err != nil {
		return Result{}, errors.ConnectionError("receive from event queue failed", err)
	}
	res := Result{Received: len(msgs)}
	if len(msgs) == 0 {
		return res, nil
	}

	b := &batch{
		records:    make(map[string]*quota.Record),
		missing:    make(map[string]bool),
		unreadable: make(map[string]bool),
		ids:        make(map[string]bool),
	}
	for _, msg := range msgs {
		c.handle(ctx, b, msg, &res)
	}

	failed, writeErr := c.write(ctx, b, &res)

	// a message is done once its own record is persisted; events for
	// records that failed are redelivered and merged again from the
	// stored state, which never saw them
	toDelete := b.settled
	var written []brokers.Message
	for _, a := range b.applied {
		if failed[a.key] {
			res.Deferred++
			continue
		}
		written = append(written, a.msg)
	}
	c.markSeen(ctx, written)
	c.delete(ctx, append(toDelete, written...), &res)

	return res, writeErr
}

func (c *Consumer) handle(ctx context.Context, b *batch, msg brokers.Message, res *Result) {
	log := c.logger.WithFields(logging.String("message_id", msg.ID))

	if b.ids[msg.ID] || c.alreadySeen(ctx, msg.ID) {
		res.Duplicates++
		c.metrics.ConsumerMessage(metrics.OutcomeDuplicate)
		log.Debug("Skipping duplicate throttle event")
		b.settled = append(b.settled, msg)
		return
	}
	b.ids[msg.ID] = true

	ev, err := quota.ParseThrottleEvent(msg.Body)
	if err != nil {
		res.Poison++
		c.metrics.ConsumerMessage(metrics.OutcomePoison)
		log.Error("Discarding unparsable throttle event", err)
		b.settled = append(b.settled, msg)
		return
	}

	key := ev.GroupID()
	if b.missing[key] {
		c.settleMissing(log, b, msg, ev, res)
		return
	}
	if b.unreadable[key] {
		res.Deferred++
		log.Debug("Deferring throttle event behind an unread record", logging.String("record", key))
		return
	}
	rec, ok := b.records[key]
	if !ok {
		rec, err = c.store.Get(ctx, ev.HashKey, ev.ClientID)
		if stderrors.Is(err, storage.ErrNotFound) {
			b.missing[key] = true
			c.settleMissing(log, b, msg, ev, res)
			return
		}
		if err != nil {
			// left on the queue; it comes back after the visibility timeout
			b.unreadable[key] = true
			res.Deferred++
			log.Error("Failed to read quota record", err, logging.String("record", key))
			return
		}
		b.records[key] = rec
		b.order = append(b.order, key)
	}

	if skipped := Merge(rec, ev); len(skipped) > 0 {
		log.Warn("Event carries periods the record does not configure",
			logging.String("record", key),
			logging.Any("periods", skipped),
		)
	}
	res.Applied++
	c.metrics.ConsumerMessage(metrics.OutcomeApplied)
	b.applied = append(b.applied, appliedMessage{msg: msg, key: key})
}

func (c *Consumer) settleMissing(log logging.Logger, b *batch, msg brokers.Message, ev quota.ThrottleEvent, res *Result) {
	res.MissingRecords++
	c.metrics.ConsumerMessage(metrics.OutcomeMissing)
	log.Warn("No quota record for throttle event",
		logging.String("hash_key", ev.HashKey),
		logging.String("client_id", ev.ClientID),
	)
	b.settled = append(b.settled, msg)
}

// write persists every merged record and returns the keys of those that
// were not written.
func (c *Consumer) write(ctx context.Context, b *batch, res *Result) (map[string]bool, error) {
	if len(b.order) == 0 {
		return nil, nil
	}
	records := make([]*quota.Record, 0, len(b.order))
	for _, key := range b.order {
		records = append(records, b.records[key])
	}

	err := storage.PutAll(ctx, c.store, records)
	c.metrics.StoreWrite(err)
	failed := storage.FailedKeys(err, records)
	res.RecordsWritten = len(records) - len(failed)
	if err != nil {
		return failed, errors.StoreWriteError("failed to write merged quota records", err).
			WithContext("records", len(records)).
			WithContext("failed", len(failed))
	}
	return nil, nil
}

func (c *Consumer) delete(ctx context.Context, msgs []brokers.Message, res *Result) {
	if len(msgs) == 0 {
		return
	}
	failures, err := c.queue.DeleteBatch(ctx, msgs)
	if err != nil {
		res.DeleteFailures = len(msgs)
		c.metrics.DeleteFailures(len(msgs))
		c.logger.Error("Failed to delete processed messages", err, logging.Int("messages", len(msgs)))
		return
	}
	res.Deleted = len(msgs) - len(failures)
	if len(failures) == 0 {
		return
	}

	res.DeleteFailures = len(failures)
	c.metrics.DeleteFailures(len(failures))
	for _, f := range failures {
		c.logger.Warn("Message not deleted",
			logging.String("message_id", f.ID),
			logging.String("code", f.Code),
			logging.String("reason", f.Reason),
		)
	}
	c.logger.Error("Partial batch delete", errors.PartialDeleteError(len(failures), len(msgs)))
}

func (c *Consumer) alreadySeen(ctx context.Context, id string) bool {
	if c.seen == nil || id == "" {
		return false
	}
	seen, err := c.seen.Contains(ctx, id)
	if err != nil {
		c.logger.Warn("Dedup lookup failed, applying message", logging.Err(err), logging.String("message_id", id))
		return false
	}
	return seen
}

func (c *Consumer) markSeen(ctx context.Context, msgs []brokers.Message) {
	if c.seen == nil {
		return
	}
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if _, err := c.seen.Add(ctx, m.ID, c.dedupTTL); err != nil {
			c.logger.Warn("Failed to record applied message", logging.Err(err), logging.String("message_id", m.ID))
		}
	}
}
