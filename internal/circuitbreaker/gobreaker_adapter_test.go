package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "quotagate/internal/common/errors"
	"quotagate/internal/common/logging"
)

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{MaxFailures: 0, Timeout: time.Second, MaxConcurrentRequests: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, Timeout: 0, MaxConcurrentRequests: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, Timeout: time.Second}.Validate())
}

func TestGoBreakerAdapter(t *testing.T) {
	logger := logging.NewNopLogger()
	config := Config{MaxFailures: 2, Timeout: 50 * time.Millisecond, MaxConcurrentRequests: 1}

	t.Run("opens after consecutive failures", func(t *testing.T) {
		var mu sync.Mutex
		var states []State
		cb := NewGoBreaker("queue", config, logger, func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		})

		assert.Equal(t, StateClosed, cb.State())
		for i := 0; i < 2; i++ {
			assert.Error(t, cb.Execute(func() error { return errors.New("send failed") }))
		}
		assert.Equal(t, StateOpen, cb.State())

		called := false
		err := cb.Execute(func() error { called = true; return nil })
		assert.ErrorIs(t, err, ErrOpen)
		assert.False(t, called)

		mu.Lock()
		assert.Equal(t, []State{StateOpen}, states)
		mu.Unlock()
	})

	t.Run("recovers through half-open", func(t *testing.T) {
		cb := NewGoBreaker("queue", config, logger, nil)
		for i := 0; i < 2; i++ {
			_ = cb.Execute(func() error { return errors.New("down") })
		}
		require.Equal(t, StateOpen, cb.State())

		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, StateHalfOpen, cb.State())

		require.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("validation errors do not trip", func(t *testing.T) {
		cb := NewGoBreaker("queue", config, logger, nil)
		for i := 0; i < 5; i++ {
			_ = cb.Execute(func() error { return apperrors.ValidationError("bad body") })
		}
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("invalid config falls back to defaults", func(t *testing.T) {
		cb := NewGoBreaker("queue", Config{}, logger, nil)
		assert.Equal(t, "queue", cb.Name())
		assert.Equal(t, StateClosed, cb.State())
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
