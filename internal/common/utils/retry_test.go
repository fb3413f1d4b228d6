package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	assert.Equal(t, 3, config.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, config.InitialDelay)
	assert.Equal(t, time.Second, config.MaxDelay)
	assert.Nil(t, config.Retryable)
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds after transient failure", func(t *testing.T) {
		attempts := 0
		err := RetryWithBackoff(context.Background(), fastConfig(3), func() error {
			attempts++
			if attempts < 2 {
				return errors.New("throttled")
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 2, attempts)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		attempts := 0
		cause := errors.New("unprocessed items")
		err := RetryWithBackoff(context.Background(), fastConfig(3), func() error {
			attempts++
			return cause
		})

		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "max retries exceeded")
		assert.Equal(t, 3, attempts)
	})

	t.Run("stops on non-retryable error", func(t *testing.T) {
		fatal := errors.New("validation")
		config := fastConfig(5)
		config.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

		attempts := 0
		err := RetryWithBackoff(context.Background(), config, func() error {
			attempts++
			return fatal
		})

		assert.Equal(t, fatal, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		config := fastConfig(3)
		config.InitialDelay = time.Hour
		err := RetryWithBackoff(ctx, config, func() error { return errors.New("down") })

		assert.ErrorIs(t, err, context.Canceled)
	})
}
