// Package config loads quotagate's configuration from the environment.
//
// A .env file in the working directory is read first when present; real
// environment variables take precedence over it.
//
// Environment Variables:
//
// Application:
//   - PORT: HTTP port (default: 8080)
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - LOG_FILE: log to this file instead of stdout
//   - NODE_ID: node identity (default: random UUID)
//   - NODE_IP: address used in leader election (default: first non-loopback IPv4)
//   - TLS_CERT_FILE, TLS_KEY_FILE: serve HTTPS when both are set
//
// Backends:
//   - STORE_BACKEND: memory, dynamodb, redis, postgres or sqlite (default: memory)
//   - QUEUE_BACKEND: memory, sqs or redis (default: memory)
//   - ELECTOR: self, heartbeat or lease (default: self)
//   - DEDUP_BACKEND: local or redis (default: local)
//
// AWS:
//   - AWS_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_SESSION_TOKEN
//   - AWS_ENDPOINT_URL: override for local stacks
//   - DYNAMODB_TABLE (default: CLIENT_ID_TOKEN_BUCKET), DYNAMODB_CONSISTENT_READ
//   - SQS_QUEUE_URL, SQS_QUEUE_NAME (default: CLIENT_THROTTLING_EVENTS.fifo),
//     SQS_CREATE_QUEUE, SQS_RETENTION_SECONDS
//
// Redis:
//   - REDIS_ADDRESS (default: localhost:6379), REDIS_PASSWORD, REDIS_DB, REDIS_POOL_SIZE
//
// SQL:
//   - DATABASE_URL: PostgreSQL connection string
//   - SQLITE_PATH (default: ./quotagate.db)
//
// Admission and pipeline:
//   - ENDPOINT_BUCKET_SIZE (default: 2000), ENDPOINT_REFILL_INTERVAL (default: 10s)
//   - PIPELINE_INITIAL_DELAY (default: 1s), PIPELINE_DELAY (default: 200ms),
//     PIPELINE_BATCH_SIZE (default: 10)
//   - HEARTBEAT_SCHEDULE (default: @every 30s), LEADER_WINDOW (default: 1m),
//     LEASE_TTL (default: 30s), ELECT_INTERVAL (default: 10s)
//   - DEDUP_TTL (default: 5m)
//   - PUBLISH_MAX_IN_FLIGHT (default: 256), PUBLISH_TIMEOUT (default: 5s)
//   - SEED_FILE: YAML quota records loaded into the store at startup
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"quotagate/internal/common/validation"
)

type Config struct {
	Port     int    `env:"PORT" validate:"min=1,max=65535"`
	LogLevel string `env:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	LogFile  string `env:"LOG_FILE"`
	NodeID   string `env:"NODE_ID" validate:"required"`
	NodeIP   string `env:"NODE_IP" validate:"required,ip"`

	TLSCertFile string `env:"TLS_CERT_FILE" validate:"required_with=TLSKeyFile"`
	TLSKeyFile  string `env:"TLS_KEY_FILE" validate:"required_with=TLSCertFile"`

	StoreBackend string `env:"STORE_BACKEND" validate:"oneof=memory dynamodb redis postgres sqlite"`
	QueueBackend string `env:"QUEUE_BACKEND" validate:"oneof=memory sqs redis"`
	Elector      string `env:"ELECTOR" validate:"oneof=self heartbeat lease"`
	DedupBackend string `env:"DEDUP_BACKEND" validate:"oneof=local redis"`

	AWSRegion          string `env:"AWS_REGION"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSSessionToken    string `env:"AWS_SESSION_TOKEN"`
	AWSEndpointURL     string `env:"AWS_ENDPOINT_URL"`

	DynamoTable          string `env:"DYNAMODB_TABLE" validate:"required_if=StoreBackend dynamodb"`
	DynamoConsistentRead bool   `env:"DYNAMODB_CONSISTENT_READ"`

	SQSQueueURL         string `env:"SQS_QUEUE_URL"`
	SQSQueueName        string `env:"SQS_QUEUE_NAME"`
	SQSCreateQueue      bool   `env:"SQS_CREATE_QUEUE"`
	SQSRetentionSeconds int    `env:"SQS_RETENTION_SECONDS" validate:"min=0"`

	RedisAddress  string `env:"REDIS_ADDRESS" validate:"required,hostname_port"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" validate:"min=0,max=15"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" validate:"min=1"`

	DatabaseURL string `env:"DATABASE_URL" validate:"required_if=StoreBackend postgres"`
	SQLitePath  string `env:"SQLITE_PATH" validate:"required_if=StoreBackend sqlite"`

	BucketSize     int           `env:"ENDPOINT_BUCKET_SIZE" validate:"min=1"`
	RefillInterval time.Duration `env:"ENDPOINT_REFILL_INTERVAL" validate:"gt=0"`

	PipelineInitialDelay time.Duration `env:"PIPELINE_INITIAL_DELAY" validate:"gte=0"`
	PipelineDelay        time.Duration `env:"PIPELINE_DELAY" validate:"gt=0"`
	PipelineBatchSize    int           `env:"PIPELINE_BATCH_SIZE" validate:"min=1,max=10"`

	HeartbeatSchedule string        `env:"HEARTBEAT_SCHEDULE" validate:"cron_expression"`
	LeaderWindow      time.Duration `env:"LEADER_WINDOW" validate:"gt=0"`
	LeaseTTL          time.Duration `env:"LEASE_TTL" validate:"gt=0"`
	ElectInterval     time.Duration `env:"ELECT_INTERVAL" validate:"gt=0"`

	DedupTTL time.Duration `env:"DEDUP_TTL" validate:"gt=0"`

	PublishMaxInFlight int           `env:"PUBLISH_MAX_IN_FLIGHT" validate:"min=1"`
	PublishTimeout     time.Duration `env:"PUBLISH_TIMEOUT" validate:"gt=0"`

	SeedFile string `env:"SEED_FILE"`

	// parseErrs collects values that were set but could not be parsed
	parseErrs []error
}

// Load reads .env if present, then the environment. Call Validate on the
// result before use.
func Load() *Config {
	_ = godotenv.Load()

	c := &Config{}
	c.Port = c.getIntEnv("PORT", 8080)
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFile = getEnv("LOG_FILE", "")
	c.NodeID = getEnv("NODE_ID", uuid.NewString())
	c.NodeIP = getEnv("NODE_IP", detectIP())
	c.TLSCertFile = getEnv("TLS_CERT_FILE", "")
	c.TLSKeyFile = getEnv("TLS_KEY_FILE", "")

	c.StoreBackend = getEnv("STORE_BACKEND", "memory")
	c.QueueBackend = getEnv("QUEUE_BACKEND", "memory")
	c.Elector = getEnv("ELECTOR", "self")
	c.DedupBackend = getEnv("DEDUP_BACKEND", "local")

	c.AWSRegion = getEnv("AWS_REGION", "")
	c.AWSAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	c.AWSSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	c.AWSSessionToken = getEnv("AWS_SESSION_TOKEN", "")
	c.AWSEndpointURL = getEnv("AWS_ENDPOINT_URL", "")

	c.DynamoTable = getEnv("DYNAMODB_TABLE", "CLIENT_ID_TOKEN_BUCKET")
	c.DynamoConsistentRead = getBoolEnv("DYNAMODB_CONSISTENT_READ", false)

	c.SQSQueueURL = getEnv("SQS_QUEUE_URL", "")
	c.SQSQueueName = getEnv("SQS_QUEUE_NAME", "CLIENT_THROTTLING_EVENTS.fifo")
	c.SQSCreateQueue = getBoolEnv("SQS_CREATE_QUEUE", false)
	c.SQSRetentionSeconds = c.getIntEnv("SQS_RETENTION_SECONDS", 100)

	c.RedisAddress = getEnv("REDIS_ADDRESS", "localhost:6379")
	c.RedisPassword = getEnv("REDIS_PASSWORD", "")
	c.RedisDB = c.getIntEnv("REDIS_DB", 0)
	c.RedisPoolSize = c.getIntEnv("REDIS_POOL_SIZE", 10)

	c.DatabaseURL = getEnv("DATABASE_URL", "")
	c.SQLitePath = getEnv("SQLITE_PATH", "./quotagate.db")

	c.BucketSize = c.getIntEnv("ENDPOINT_BUCKET_SIZE", 2000)
	c.RefillInterval = c.getDurationEnv("ENDPOINT_REFILL_INTERVAL", 10*time.Second)

	c.PipelineInitialDelay = c.getDurationEnv("PIPELINE_INITIAL_DELAY", time.Second)
	c.PipelineDelay = c.getDurationEnv("PIPELINE_DELAY", 200*time.Millisecond)
	c.PipelineBatchSize = c.getIntEnv("PIPELINE_BATCH_SIZE", 10)

	c.HeartbeatSchedule = getEnv("HEARTBEAT_SCHEDULE", "@every 30s")
	c.LeaderWindow = c.getDurationEnv("LEADER_WINDOW", time.Minute)
	c.LeaseTTL = c.getDurationEnv("LEASE_TTL", 30*time.Second)
	c.ElectInterval = c.getDurationEnv("ELECT_INTERVAL", 10*time.Second)

	c.DedupTTL = c.getDurationEnv("DEDUP_TTL", 5*time.Minute)

	c.PublishMaxInFlight = c.getIntEnv("PUBLISH_MAX_IN_FLIGHT", 256)
	c.PublishTimeout = c.getDurationEnv("PUBLISH_TIMEOUT", 5*time.Second)

	c.SeedFile = getEnv("SEED_FILE", "")
	return c
}

// Validate reports every invalid or missing setting at once
func (c *Config) Validate() error {
	v := validation.NewValidatorWithPrefix("config")
	for _, err := range c.parseErrs {
		v.Add(err)
	}
	v.Add(validation.ValidateStruct(c))

	needsAWS := c.StoreBackend == "dynamodb" || c.QueueBackend == "sqs"
	v.ValidateIf(needsAWS && c.AWSRegion == "", func() error {
		return fmt.Errorf("AWS_REGION is required for the %s/%s backends", c.StoreBackend, c.QueueBackend)
	})
	v.ValidateIf(c.ElectInterval >= c.LeaseTTL && c.Elector == "lease", func() error {
		return fmt.Errorf("ELECT_INTERVAL (%s) must be shorter than LEASE_TTL (%s)", c.ElectInterval, c.LeaseTTL)
	})
	return v.Error()
}

// UsesRedis reports whether any component needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.StoreBackend == "redis" ||
		c.QueueBackend == "redis" ||
		c.Elector == "heartbeat" ||
		c.Elector == "lease" ||
		c.DedupBackend == "redis"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (c *Config) getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s must be an integer, got %q", key, value))
		return defaultValue
	}
	return n
}

func (c *Config) getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s must be a duration such as 200ms or 1m, got %q", key, value))
		return defaultValue
	}
	return d
}

// detectIP picks the first non-loopback IPv4 address, falling back to
// loopback when the host has none.
func detectIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}
