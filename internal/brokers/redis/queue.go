// Package redis provides a Redis Streams implementation of the event queue.
// Entries are read through a consumer group; deleting a message
// acknowledges and removes the entry.
package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"quotagate/internal/brokers"
	"quotagate/internal/common/errors"
)

type Queue struct {
	client *redis.Client
	config *Config
}

// NewQueue creates the consumer group (and stream) when missing
func NewQueue(ctx context.Context, client *redis.Client, config *Config) (*Queue, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	err := client.XGroupCreateMkStream(ctx, config.Stream, config.ConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, errors.InternalError("failed to create consumer group", err)
	}

	return &Queue{client: client, config: config}, nil
}

func (q *Queue) Send(ctx context.Context, groupID, body string) error {
	args := &redis.XAddArgs{
		Stream: q.config.Stream,
		Values: map[string]interface{}{
			"body":  body,
			"group": groupID,
		},
	}
	if q.config.StreamMaxLen > 0 {
		args.MaxLen = q.config.StreamMaxLen
		args.Approx = true
	}

	if err := q.client.XAdd(ctx, args).Err(); err != nil {
		return errors.PublishError("failed to add entry to Redis stream", err).WithContext("stream", q.config.Stream)
	}
	return nil
}

// ReceiveBatch returns this consumer's pending entries first, so entries
// read but never acknowledged are redelivered, then new entries.
func (q *Queue) ReceiveBatch(ctx context.Context, max int) ([]brokers.Message, error) {
	msgs, err := q.read(ctx, "0", max)
	if err != nil || len(msgs) > 0 {
		return msgs, err
	}
	return q.read(ctx, ">", max)
}

func (q *Queue) read(ctx context.Context, start string, max int) ([]brokers.Message, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.config.ConsumerGroup,
		Consumer: q.config.ConsumerName,
		Streams:  []string{q.config.Stream, start},
		Count:    int64(max),
		Block:    -1,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ConnectionError("failed to read Redis stream", err)
	}

	var msgs []brokers.Message
	for _, s := range streams {
		for _, m := range s.Messages {
			body, ok := m.Values["body"]
			if !ok {
				// trimmed or deleted entry still listed as pending
				q.client.XAck(ctx, q.config.Stream, q.config.ConsumerGroup, m.ID)
				continue
			}
			msgs = append(msgs, brokers.Message{
				ID:            m.ID,
				ReceiptHandle: m.ID,
				Body:          fmt.Sprint(body),
			})
		}
	}
	return msgs, nil
}

func (q *Queue) DeleteBatch(ctx context.Context, messages []brokers.Message) ([]brokers.DeleteFailure, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ReceiptHandle
	}

	if err := q.client.XAck(ctx, q.config.Stream, q.config.ConsumerGroup, ids...).Err(); err != nil {
		failed := make([]brokers.DeleteFailure, len(messages))
		for i, m := range messages {
			failed[i] = brokers.DeleteFailure{ID: m.ID, Code: "XACK", Reason: err.Error()}
		}
		return failed, nil
	}
	// acknowledged entries are never redelivered, so a failed XDEL only costs space
	if err := q.client.XDel(ctx, q.config.Stream, ids...).Err(); err != nil {
		return nil, errors.InternalError("failed to remove acknowledged stream entries", err)
	}
	return nil, nil
}

func (q *Queue) Health(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op; the shared client is closed by its owner
func (q *Queue) Close() error {
	return nil
}
