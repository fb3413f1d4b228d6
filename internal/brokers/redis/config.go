package redis

import (
	"quotagate/internal/common/validation"
)

const (
	DefaultStream        = "quotagate:throttle-events"
	DefaultConsumerGroup = "quotagate"
	// DefaultConsumerName is shared by every node. Only the leader reads,
	// so unacknowledged entries stay claimable across leader changes.
	DefaultConsumerName = "leader"
)

type Config struct {
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	// StreamMaxLen trims the stream approximately; 0 disables trimming
	StreamMaxLen int64
}

func (c *Config) Validate() error {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = DefaultConsumerGroup
	}
	if c.ConsumerName == "" {
		c.ConsumerName = DefaultConsumerName
	}

	v := validation.NewValidatorWithPrefix("Redis stream config")
	v.RequireRange(int(c.StreamMaxLen), 0, 1<<30, "stream_max_len")
	return v.Error()
}

func DefaultConfig() *Config {
	return &Config{
		Stream:        DefaultStream,
		ConsumerGroup: DefaultConsumerGroup,
		ConsumerName:  DefaultConsumerName,
	}
}
