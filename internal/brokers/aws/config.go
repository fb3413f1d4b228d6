package aws

import (
	"strings"

	"quotagate/internal/common/awsutil"
	"quotagate/internal/common/errors"
	"quotagate/internal/common/validation"
)

const (
	DefaultQueueName = "CLIENT_THROTTLING_EVENTS.fifo"
	// maxReceive and maxDeleteBatch are SQS per-request limits
	maxReceive     = 10
	maxDeleteBatch = 10
)

type Config struct {
	AWS awsutil.Config
	// QueueURL is used as is; when empty the URL is resolved from QueueName
	QueueURL  string
	QueueName string
	// CreateIfMissing creates QueueName as a content-deduplicated FIFO queue
	CreateIfMissing   bool
	VisibilityTimeout int32
	WaitTimeSeconds   int32
	RetentionSeconds  int32
}

func (c *Config) Validate() error {
	v := validation.NewValidatorWithPrefix("SQS config")
	v.Add(c.AWS.Validate())

	if c.QueueName == "" {
		c.QueueName = DefaultQueueName
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 30
	}
	if c.RetentionSeconds <= 0 {
		c.RetentionSeconds = 100
	}

	v.RequireRange(int(c.WaitTimeSeconds), 0, 20, "wait_time_seconds")
	v.RequireRange(int(c.RetentionSeconds), 60, 1209600, "retention_seconds")
	v.ValidateIf(c.CreateIfMissing && !strings.HasSuffix(c.QueueName, ".fifo"), func() error {
		return errors.ConfigError("queue name must end in .fifo to be created as a FIFO queue")
	})
	return v.Error()
}

func DefaultConfig() *Config {
	return &Config{
		AWS:               awsutil.Config{Region: "us-west-2"},
		QueueName:         DefaultQueueName,
		VisibilityTimeout: 30,
		WaitTimeSeconds:   0,
		RetentionSeconds:  100,
	}
}
