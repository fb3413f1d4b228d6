package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	apperrors "quotagate/internal/common/errors"
	"quotagate/internal/common/logging"
	"quotagate/internal/quota"
	"quotagate/internal/storage"
)

const testNow = int64(1_700_000_000_000)

type recordingPublisher struct {
	mu     sync.Mutex
	events []quota.ThrottleEvent
}

func (p *recordingPublisher) Publish(ev quota.ThrottleEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Events() []quota.ThrottleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]quota.ThrottleEvent(nil), p.events...)
}

type failingGetter struct{ err error }

func (f failingGetter) Get(context.Context, string, string) (*quota.Record, error) {
	return nil, f.err
}

// relaxed is a window that allows at now: the last call was long ago and
// no burst calls have been used.
func relaxed(p quota.Period) *quota.WindowState {
	return &quota.WindowState{
		LastUpdated:             testNow - 2*p.Millis(),
		MaxAllowedRate:          10,
		LastUpdatedBurst:        testNow - 2*p.Millis(),
		MaxAllowedCallsInPeriod: 5,
	}
}

// exhausted denies at now: the burst sub-window is open and full.
func exhausted(p quota.Period) *quota.WindowState {
	return &quota.WindowState{
		LastUpdated:             testNow - 10,
		MaxAllowedRate:          10,
		ObservedRate:            0.001,
		LastUpdatedBurst:        testNow - 10,
		MaxAllowedCallsInPeriod: 5,
		CallsInPeriod:           5,
	}
}

func newEngine(t *testing.T, store RecordGetter, pub Publisher) *Engine {
	t.Helper()
	clk := testclock.NewFakeClock(time.UnixMilli(testNow))
	return NewEngine(store, pub, WithClock(clk), WithLogger(logging.NewNopLogger()))
}

func TestEvaluate_AbsentWindowsAreSentinels(t *testing.T) {
	for _, p := range quota.Periods {
		t.Run(string(p), func(t *testing.T) {
			rec := &quota.Record{HashKey: "orders:POST", ClientID: "c1", Windows: map[quota.Period]*quota.WindowState{}}
			for _, other := range quota.Periods {
				if other != p {
					rec.Windows[other] = exhausted(other)
				}
			}

			tokens := Evaluate(rec, testNow)
			require.Len(t, tokens, len(quota.Periods))
			for _, tok := range tokens {
				if tok.Period == p {
					assert.True(t, tok.Allowed)
					assert.Equal(t, quota.UnconfiguredRate, tok.Rate)
				} else {
					assert.False(t, tok.Allowed)
				}
			}
		})
	}
}

func TestEvaluate_Rules(t *testing.T) {
	tests := []struct {
		name    string
		window  quota.WindowState
		allowed bool
	}{
		{
			// candidate 0.5/ms >= 0.1 but burst calls remain
			name: "burst admission",
			window: quota.WindowState{
				LastUpdated: testNow - 2, ObservedRate: 0.5, MaxAllowedRate: 0.1,
				LastUpdatedBurst: testNow - 100, CallsInPeriod: 2, MaxAllowedCallsInPeriod: 5,
			},
			allowed: true,
		},
		{
			name: "over rate with burst spent",
			window: quota.WindowState{
				LastUpdated: testNow - 2, ObservedRate: 0.5, MaxAllowedRate: 0.1,
				LastUpdatedBurst: testNow - 100, CallsInPeriod: 5, MaxAllowedCallsInPeriod: 5,
			},
			allowed: false,
		},
		{
			name: "over rate after burst window",
			window: quota.WindowState{
				LastUpdated: testNow - 2, ObservedRate: 0.5, MaxAllowedRate: 0.1,
				LastUpdatedBurst: testNow - 1001, CallsInPeriod: 50, MaxAllowedCallsInPeriod: 5,
			},
			allowed: true,
		},
		{
			// candidate well under the ceiling but the burst allotment is used
			name: "non-burst denial",
			window: quota.WindowState{
				LastUpdated: testNow - 500, ObservedRate: 0.0001, MaxAllowedRate: 1,
				LastUpdatedBurst: testNow - 500, CallsInPeriod: 5, MaxAllowedCallsInPeriod: 5,
			},
			allowed: false,
		},
		{
			name: "under rate with calls left",
			window: quota.WindowState{
				LastUpdated: testNow - 500, ObservedRate: 0.0001, MaxAllowedRate: 1,
				LastUpdatedBurst: testNow - 500, CallsInPeriod: 1, MaxAllowedCallsInPeriod: 5,
			},
			allowed: true,
		},
		{
			name: "burst boundary is exclusive",
			window: quota.WindowState{
				LastUpdated: testNow - 500, MaxAllowedRate: 1,
				LastUpdatedBurst: testNow - 1000, CallsInPeriod: 5, MaxAllowedCallsInPeriod: 5,
			},
			allowed: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.window
			rec := &quota.Record{Windows: map[quota.Period]*quota.WindowState{quota.Second: &w}}
			tok := Evaluate(rec, testNow)[0]
			assert.Equal(t, quota.Second, tok.Period)
			assert.Equal(t, tt.allowed, tok.Allowed)
		})
	}
}

func TestEvaluate_CandidateRate(t *testing.T) {
	t.Run("within period", func(t *testing.T) {
		w := &quota.WindowState{LastUpdated: testNow - 100, ObservedRate: 0.01, MaxAllowedRate: 1, MaxAllowedCallsInPeriod: 1}
		tok := Evaluate(&quota.Record{Windows: map[quota.Period]*quota.WindowState{quota.Second: w}}, testNow)[0]
		// (0.01*100 + 1) / 100
		assert.InDelta(t, 0.02, tok.Rate, 1e-12)
	})
	t.Run("outside period", func(t *testing.T) {
		w := &quota.WindowState{LastUpdated: testNow - 4000, ObservedRate: 0.5, MaxAllowedRate: 1}
		tok := Evaluate(&quota.Record{Windows: map[quota.Period]*quota.WindowState{quota.Second: w}}, testNow)[0]
		assert.InDelta(t, 1.0/4000, tok.Rate, 1e-12)
	})
	t.Run("same millisecond clamps to one", func(t *testing.T) {
		w := &quota.WindowState{LastUpdated: testNow, ObservedRate: 0.5, MaxAllowedRate: 0.1,
			LastUpdatedBurst: testNow, CallsInPeriod: 1, MaxAllowedCallsInPeriod: 2}
		tok := Evaluate(&quota.Record{Windows: map[quota.Period]*quota.WindowState{quota.Second: w}}, testNow)[0]
		assert.InDelta(t, 1.5, tok.Rate, 1e-12)
		assert.True(t, tok.Allowed, "burst capacity remains")
	})
	t.Run("future timestamp clamps to one", func(t *testing.T) {
		w := &quota.WindowState{LastUpdated: testNow + 50, MaxAllowedRate: 0.1,
			LastUpdatedBurst: testNow, CallsInPeriod: 2, MaxAllowedCallsInPeriod: 2}
		tok := Evaluate(&quota.Record{Windows: map[quota.Period]*quota.WindowState{quota.Second: w}}, testNow)[0]
		assert.InDelta(t, 1.0, tok.Rate, 1e-12)
		assert.False(t, tok.Allowed)
	})
}

func TestEngine_ConjunctionLaw(t *testing.T) {
	for _, denying := range append([]quota.Period{""}, quota.Periods...) {
		name := string(denying)
		if name == "" {
			name = "none"
		}
		t.Run(name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			rec := &quota.Record{HashKey: "orders:POST", ClientID: "c1", Windows: map[quota.Period]*quota.WindowState{}}
			for _, p := range quota.Periods {
				if p == denying {
					rec.Windows[p] = exhausted(p)
				} else {
					rec.Windows[p] = relaxed(p)
				}
			}
			require.NoError(t, store.Put(context.Background(), rec))

			pub := &recordingPublisher{}
			allowed, err := newEngine(t, store, pub).Consume(context.Background(), "orders", "POST", "c1")
			require.NoError(t, err)
			assert.Equal(t, denying == "", allowed)
			if allowed {
				assert.Len(t, pub.Events(), 1)
			} else {
				assert.Empty(t, pub.Events(), "throttled calls are not published")
			}
		})
	}
}

func TestEngine_PublishesPositiveRates(t *testing.T) {
	store := storage.NewMemoryStore()
	rec := &quota.Record{HashKey: "orders:POST", ClientID: "c1", Windows: map[quota.Period]*quota.WindowState{
		quota.Second: relaxed(quota.Second),
		quota.Hour:   relaxed(quota.Hour),
	}}
	require.NoError(t, store.Put(context.Background(), rec))

	pub := &recordingPublisher{}
	allowed, err := newEngine(t, store, pub).Consume(context.Background(), "orders", "POST", "c1")
	require.NoError(t, err)
	require.True(t, allowed)

	events := pub.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "orders:POST", ev.HashKey)
	assert.Equal(t, "c1", ev.ClientID)
	assert.Equal(t, testNow, ev.Timestamp)
	assert.Len(t, ev.Rates, 2)
	assert.InDelta(t, 1.0/2000, ev.Rates[quota.Second], 1e-12)
	assert.Contains(t, ev.Rates, quota.Hour)
}

func TestEngine_FallsBackToDefault(t *testing.T) {
	store := storage.NewMemoryStore()
	def := &quota.Record{HashKey: "orders:GET", ClientID: quota.DefaultClientID, Windows: map[quota.Period]*quota.WindowState{
		quota.Second: relaxed(quota.Second),
	}}
	require.NoError(t, store.Put(context.Background(), def))

	pub := &recordingPublisher{}
	allowed, err := newEngine(t, store, pub).Consume(context.Background(), "orders", "GET", "unknown-client")
	require.NoError(t, err)
	assert.True(t, allowed)
	require.Len(t, pub.Events(), 1)
	assert.Equal(t, quota.DefaultClientID, pub.Events()[0].ClientID)
}

func TestEngine_NotConfigured(t *testing.T) {
	pub := &recordingPublisher{}
	allowed, err := newEngine(t, storage.NewMemoryStore(), pub).Consume(context.Background(), "orders", "DELETE", "c1")
	assert.False(t, allowed)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotConfigured))
	assert.Empty(t, pub.Events())
}

func TestEngine_StoreFailure(t *testing.T) {
	engine := newEngine(t, failingGetter{err: errors.New("connection refused")}, &recordingPublisher{})
	allowed, err := engine.Consume(context.Background(), "orders", "POST", "c1")
	assert.False(t, allowed)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConnection))
}
