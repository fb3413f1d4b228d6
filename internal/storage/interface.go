// Package storage defines the shared quota state store and its in-process
// implementation. Networked backends live in sub-packages.
package storage

import (
	"context"
	"errors"
	"fmt"

	"quotagate/internal/quota"
)

// ErrNotFound is returned by Get when no record exists for the key
var ErrNotFound = errors.New("quota record not found")

// QuotaStore persists quota records keyed by (hashKey, clientID).
// Reads may be eventually consistent. Put replaces the whole record.
type QuotaStore interface {
	Get(ctx context.Context, hashKey, clientID string) (*quota.Record, error)
	Put(ctx context.Context, record *quota.Record) error
	Close() error
}

// BatchPutter is implemented by stores that can write several records in
// one round trip. Callers fall back to Put when a store does not.
// When only some records were written the error is a *PartialWriteError.
type BatchPutter interface {
	PutBatch(ctx context.Context, records []*quota.Record) error
}

// PartialWriteError names the records of a batch that were not written.
// Every other record of the batch was persisted.
type PartialWriteError struct {
	// Failed holds record keys as returned by quota.Record.Key
	Failed []string
	Err    error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%d records not written: %v", len(e.Failed), e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// FailedKeys returns the keys of records that err reports as unwritten.
// An error that does not name records fails the whole batch.
func FailedKeys(err error, records []*quota.Record) map[string]bool {
	if err == nil {
		return nil
	}
	failed := make(map[string]bool)
	var pw *PartialWriteError
	if errors.As(err, &pw) {
		for _, k := range pw.Failed {
			failed[k] = true
		}
		return failed
	}
	for _, r := range records {
		failed[r.Key()] = true
	}
	return failed
}

// HealthChecker is implemented by stores with a reachable backend
type HealthChecker interface {
	Health(ctx context.Context) error
}

// PutAll writes records with PutBatch when supported, otherwise one Put at
// a time. Put failures do not stop the remaining writes; they are reported
// together as a *PartialWriteError.
func PutAll(ctx context.Context, s QuotaStore, records []*quota.Record) error {
	if len(records) == 0 {
		return nil
	}
	if bp, ok := s.(BatchPutter); ok {
		return bp.PutBatch(ctx, records)
	}
	var (
		failed   []string
		firstErr error
	)
	for _, r := range records {
		if err := s.Put(ctx, r); err != nil {
			failed = append(failed, r.Key())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if len(failed) > 0 {
		return &PartialWriteError{Failed: failed, Err: firstErr}
	}
	return nil
}
