package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "basic error",
			appError: ConfigError("configuration is invalid"),
			want:     "config: configuration is invalid",
		},
		{
			name:     "error with code",
			appError: ValidationError("bad period").WithCode("Q001"),
			want:     "validation: bad period: code=Q001",
		},
		{
			name:     "error with cause",
			appError: StoreWriteError("put quota record", errors.New("throughput exceeded")),
			want:     "store_write_failure: put quota record: cause=throughput exceeded",
		},
		{
			name:     "error with sorted context",
			appError: PartialDeleteError(2, 10).WithContext("batch", "b1"),
			want:     "partial_delete_failure: 2 of 10 messages not deleted: context={batch=b1, failed=2}",
		},
		{
			name:     "not configured",
			appError: NotConfiguredError("orders:POST", "acme"),
			want:     "not_configured: no quota configured for orders:POST: context={client_id=acme}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.appError.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := PublishError("send event", cause)

	assert.ErrorIs(t, err, cause)
}

func TestIsType(t *testing.T) {
	wrapped := fmt.Errorf("engine: %w", NotConfiguredError("orders:GET", "acme"))

	assert.True(t, IsType(wrapped, ErrTypeNotConfigured))
	assert.False(t, IsType(wrapped, ErrTypeTimeout))
	assert.False(t, IsType(errors.New("plain"), ErrTypeInternal))
	assert.False(t, IsType(nil, ErrTypeInternal))
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrorType(""), GetType(nil))
	assert.Equal(t, ErrTypeInternal, GetType(errors.New("plain")))
	assert.Equal(t, ErrTypeParse, GetType(fmt.Errorf("wrap: %w", ParseError("bad body", nil))))
	assert.Equal(t, ErrTypeRateLimit, GetType(RateLimitError("orders:POST")))
}
