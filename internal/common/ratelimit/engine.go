package ratelimit

import (
	"context"
	stderrors "errors"

	"k8s.io/utils/clock"

	"quotagate/internal/common/errors"
	"quotagate/internal/common/logging"
	"quotagate/internal/metrics"
	"quotagate/internal/quota"
	"quotagate/internal/storage"
)

// Engine makes per-client quota decisions from the shared quota state.
// Reads only; every allowed call is reported through the Publisher and
// folded back into the state by the consumer.
type Engine struct {
	records   RecordGetter
	publisher Publisher
	clock     clock.PassiveClock
	logger    logging.Logger
	metrics   *metrics.Metrics
}

type EngineOption func(*Engine)

func WithClock(c clock.PassiveClock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l logging.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(records RecordGetter, publisher Publisher, opts ...EngineOption) *Engine {
	e := &Engine{
		records:   records,
		publisher: publisher,
		clock:     clock.RealClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Component("engine")
	}
	return e
}

// Consume reports whether clientID may call verb on api now. The client's
// own record is used when present, otherwise the endpoint's default record.
// A NotConfigured error is returned when neither exists.
func (e *Engine) Consume(ctx context.Context, api, verb, clientID string) (bool, error) {
	hashKey := quota.HashKey(api, verb)

	rec, err := e.lookup(ctx, hashKey, clientID)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeNotConfigured) {
			e.metrics.Decision("client", metrics.ResultNotConfigured)
		} else {
			e.metrics.Decision("client", metrics.ResultError)
		}
		return false, err
	}

	now := e.clock.Now().UnixMilli()
	tokens := Evaluate(rec, now)
	allowed := true
	for _, t := range tokens {
		allowed = allowed && t.Allowed
	}

	if !allowed {
		e.metrics.Decision("client", metrics.ResultThrottled)
		e.logger.Debug("Client throttled",
			logging.String("hash_key", hashKey),
			logging.String("client_id", clientID),
			logging.String("record_client_id", rec.ClientID),
		)
		return false, nil
	}

	e.metrics.Decision("client", metrics.ResultAllowed)
	if e.publisher != nil {
		// attributed to the record that made the decision
		e.publisher.Publish(quota.NewThrottleEvent(rec.HashKey, rec.ClientID, now, tokens))
	}
	return true, nil
}

func (e *Engine) lookup(ctx context.Context, hashKey, clientID string) (*quota.Record, error) {
	if clientID != "" && clientID != quota.DefaultClientID {
		rec, err := e.records.Get(ctx, hashKey, clientID)
		if err == nil {
			return rec, nil
		}
		if !stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.ConnectionError("quota store read failed", err).
				WithContext("hash_key", hashKey).
				WithContext("client_id", clientID)
		}
	}

	rec, err := e.records.Get(ctx, hashKey, quota.DefaultClientID)
	if err == nil {
		return rec, nil
	}
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, errors.NotConfiguredError(hashKey, clientID)
	}
	return nil, errors.ConnectionError("quota store read failed", err).
		WithContext("hash_key", hashKey).
		WithContext("client_id", quota.DefaultClientID)
}

// Evaluate computes one token per period, in canonical order, for a call
// at now (Unix ms). Periods the record does not configure yield the
// UnconfiguredRate sentinel and always allow.
func Evaluate(rec *quota.Record, now int64) []quota.RateToken {
	tokens := make([]quota.RateToken, 0, len(quota.Periods))
	for _, p := range quota.Periods {
		w, ok := rec.Windows[p]
		if !ok || w == nil {
			tokens = append(tokens, quota.RateToken{Period: p, Rate: quota.UnconfiguredRate, Allowed: true})
			continue
		}
		tokens = append(tokens, evaluateWindow(p, w, now))
	}
	return tokens
}

func evaluateWindow(p quota.Period, w *quota.WindowState, now int64) quota.RateToken {
	period := p.Millis()

	deltaT := now - w.LastUpdated
	if deltaT <= 0 {
		deltaT = 1
	}

	calls := 1.0
	if deltaT < period {
		calls = w.ObservedRate*float64(deltaT) + 1
	}
	rate := calls / float64(deltaT)

	pastBurst := now-w.LastUpdatedBurst > period
	underCalls := w.CallsInPeriod < w.MaxAllowedCallsInPeriod

	// Over the rate the call needs a fresh burst or spare calls; under it,
	// it is refused only with the burst still open and the calls used up.
	// Both reduce to the same predicate.
	var allowed bool
	if rate >= w.MaxAllowedRate {
		allowed = pastBurst || underCalls
	} else {
		allowed = !(!pastBurst && !underCalls)
	}
	return quota.RateToken{Period: p, Rate: rate, Allowed: allowed}
}
