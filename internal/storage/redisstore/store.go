// Package redisstore keeps quota records as JSON strings in Redis.
package redisstore

import (
	"context"
	"encoding/json"

	goredis "github.com/go-redis/redis/v8"

	"quotagate/internal/common/errors"
	"quotagate/internal/quota"
	"quotagate/internal/redis"
	"quotagate/internal/storage"
)

const DefaultPrefix = "quotagate:quota:"

type Store struct {
	client *redis.Client
	prefix string
}

func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(hashKey, clientID string) string {
	return s.prefix + quota.RecordKey(hashKey, clientID)
}

func (s *Store) Get(ctx context.Context, hashKey, clientID string) (*quota.Record, error) {
	var rec quota.Record
	err := s.client.GetJSON(ctx, s.key(hashKey, clientID), &rec)
	if redis.IsNil(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.ConnectionError("redis get quota record", err)
	}
	return &rec, nil
}

func (s *Store) Put(ctx context.Context, record *quota.Record) error {
	if err := s.client.SetJSON(ctx, s.key(record.HashKey, record.ClientID), record, 0); err != nil {
		return errors.StoreWriteError("redis set quota record", err).WithContext("key", record.Key())
	}
	return nil
}

// PutBatch writes every record in a single pipeline round trip. The
// pipeline is not atomic, so each SET is checked and the records that did
// not land are reported in a *storage.PartialWriteError.
func (s *Store) PutBatch(ctx context.Context, records []*quota.Record) error {
	var (
		failed  []string
		lastErr error
		pending = make([]*quota.Record, 0, len(records))
		payload = make([][]byte, 0, len(records))
	)
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			failed = append(failed, r.Key())
			lastErr = err
			continue
		}
		pending = append(pending, r)
		payload = append(payload, data)
	}

	if len(pending) > 0 {
		cmds, err := s.client.Redis().Pipelined(ctx, func(pipe goredis.Pipeliner) error {
			for i, r := range pending {
				pipe.Set(ctx, s.key(r.HashKey, r.ClientID), payload[i], 0)
			}
			return nil
		})
		if err != nil {
			lastErr = err
			if len(cmds) != len(pending) {
				for _, r := range pending {
					failed = append(failed, r.Key())
				}
			} else {
				for i, cmd := range cmds {
					if cmd.Err() != nil {
						failed = append(failed, pending[i].Key())
					}
				}
			}
		}
	}

	if len(failed) > 0 {
		return errors.StoreWriteError("redis pipelined quota write",
			&storage.PartialWriteError{Failed: failed, Err: lastErr}).
			WithContext("records", len(records))
	}
	return nil
}

func (s *Store) Health(context.Context) error {
	return s.client.Health()
}

// Close is a no-op; the shared client is closed by its owner
func (s *Store) Close() error {
	return nil
}
