package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidator_NoErrors(t *testing.T) {
	v := NewValidator().
		RequireString("orders", "table").
		RequirePositive(10, "batch size").
		RequirePositiveFloat(0.5, "rate").
		RequirePositiveDuration(time.Second, "delay").
		RequireRange(5, 1, 10, "max messages").
		RequireURL("https://sqs.us-east-1.amazonaws.com/1/q.fifo", "queue url").
		RequireOneOf("redis", []string{"memory", "redis"}, "backend")

	assert.False(t, v.HasErrors())
	assert.NoError(t, v.Error())
}

func TestValidator_SingleErrorWithPrefix(t *testing.T) {
	err := NewValidatorWithPrefix("sqs config").RequireString(" ", "region").Error()
	assert.EqualError(t, err, "sqs config: region is required")
}

func TestValidator_MultipleErrors(t *testing.T) {
	v := NewValidator().
		RequirePositive(0, "bucket size").
		RequirePositiveDuration(-time.Second, "refill interval").
		RequireURL("not a url", "endpoint").
		RequireOneOf("etcd", []string{"self", "heartbeat"}, "elector").
		ValidateIf(true, func() error { return errors.New("custom failure") }).
		ValidateIf(false, func() error { return errors.New("skipped") }).
		Add(nil).
		Add(errors.New("nested config invalid"))

	err := v.Error()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bucket size must be positive")
	assert.Contains(t, err.Error(), "refill interval must be a positive duration")
	assert.Contains(t, err.Error(), "endpoint must be a complete URL")
	assert.Contains(t, err.Error(), "elector must be one of: self, heartbeat")
	assert.Contains(t, err.Error(), "custom failure")
	assert.Contains(t, err.Error(), "nested config invalid")
	assert.NotContains(t, err.Error(), "skipped")
}
