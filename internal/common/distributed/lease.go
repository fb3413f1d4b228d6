package distributed

import (
	"context"
	"strings"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	redsyncgoredis "github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/google/uuid"

	"quotagate/internal/common/errors"
	"quotagate/internal/common/logging"
	"quotagate/internal/common/validation"
)

type LeaseConfig struct {
	Key    string
	NodeIP string
	// TTL is how long the lease survives without being extended
	TTL time.Duration
}

func DefaultLeaseConfig() LeaseConfig {
	return LeaseConfig{
		Key: "quotagate:leader",
		TTL: 30 * time.Second,
	}
}

func (c *LeaseConfig) Validate() error {
	def := DefaultLeaseConfig()
	if c.Key == "" {
		c.Key = def.Key
	}
	if c.TTL <= 0 {
		c.TTL = def.TTL
	}
	return validation.NewValidatorWithPrefix("lease elector").
		RequireString(c.NodeIP, "node IP").
		Error()
}

// LeaseElector holds leadership as a redsync mutex. The holder keeps it by
// calling ElectLeader more often than the TTL; anyone else takes it over
// once it expires.
type LeaseElector struct {
	client *goredis.Client
	mutex  *redsync.Mutex
	config LeaseConfig
	logger logging.Logger

	mu   sync.Mutex
	held bool
}

func NewLeaseElector(client *goredis.Client, config LeaseConfig, logger logging.Logger) (*LeaseElector, error) {
	if client == nil {
		return nil, errors.ConfigError("redis client is required for the lease elector")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Component("lease_elector")
	}

	rs := redsync.New(redsyncgoredis.NewPool(client))
	nodeIP := config.NodeIP
	mutex := rs.NewMutex(config.Key,
		redsync.WithExpiry(config.TTL),
		redsync.WithTries(1),
		// the value names the holder so followers can report the leader
		redsync.WithGenValueFunc(func() (string, error) {
			return nodeIP + "/" + uuid.NewString(), nil
		}),
	)

	return &LeaseElector{
		client: client,
		mutex:  mutex,
		config: config,
		logger: logger.WithFields(logging.String("node_ip", config.NodeIP)),
	}, nil
}

// ElectLeader extends the lease when held, otherwise tries to take it
func (l *LeaseElector) ElectLeader(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		ok, err := l.mutex.ExtendContext(ctx)
		if err == nil && ok {
			return true
		}
		l.held = false
		l.logger.Warn("Lost leader lease", logging.Err(err))
	}

	if err := l.mutex.LockContext(ctx); err != nil {
		return false
	}
	l.held = true
	l.logger.Info("Acquired leader lease", logging.Duration("ttl", l.config.TTL))
	return true
}

// IsLeader reports whether the lease is held and not yet expired
func (l *LeaseElector) IsLeader(context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held && time.Now().Before(l.mutex.Until())
}

func (l *LeaseElector) LeaderIP(ctx context.Context) string {
	val, err := l.client.Get(ctx, l.config.Key).Result()
	if err != nil {
		if err != goredis.Nil {
			l.logger.Warn("Cannot read leader lease", logging.Err(err))
		}
		return ""
	}
	ip, _, _ := strings.Cut(val, "/")
	return ip
}

// Resign releases the lease if this node holds it
func (l *LeaseElector) Resign(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false
	if _, err := l.mutex.UnlockContext(ctx); err != nil {
		return errors.ConnectionError("failed to release leader lease", err)
	}
	return nil
}
