package ratelimit

import (
	"time"

	"quotagate/internal/common/validation"
)

// BucketConfig sizes an endpoint leaky bucket
type BucketConfig struct {
	// Size is the number of drops the bucket holds
	Size int `json:"size" yaml:"size"`
	// RefillInterval is the time it takes one drop to leak out
	RefillInterval time.Duration `json:"refill_interval" yaml:"refill_interval"`
}

// DefaultBucketConfig returns 2000 drops leaking one every ten seconds
func DefaultBucketConfig() BucketConfig {
	return BucketConfig{
		Size:           2000,
		RefillInterval: 10 * time.Second,
	}
}

func (c BucketConfig) Validate() error {
	return validation.NewValidatorWithPrefix("endpoint bucket").
		RequirePositive(c.Size, "size").
		RequirePositiveDuration(c.RefillInterval, "refill interval").
		Error()
}

// PublisherConfig bounds asynchronous event publishing
type PublisherConfig struct {
	// MaxInFlight caps concurrent sends; events beyond it are dropped
	MaxInFlight int
	// Timeout bounds a single send
	Timeout time.Duration
}

func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		MaxInFlight: 256,
		Timeout:     5 * time.Second,
	}
}

// withDefaults replaces unset or non-positive fields with the defaults
func (c PublisherConfig) withDefaults() PublisherConfig {
	d := DefaultPublisherConfig()
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = d.MaxInFlight
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}
