package distributed

import (
	"context"
	"strconv"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"k8s.io/utils/clock"

	"quotagate/internal/common/errors"
	"quotagate/internal/common/logging"
	"quotagate/internal/common/validation"
)

type HeartbeatConfig struct {
	// Key is the sorted set holding ip -> last heartbeat (Unix ms)
	Key    string
	NodeIP string
	// Window is how long a heartbeat keeps a node eligible
	Window time.Duration
	// Schedule is a cron spec for sending heartbeats
	Schedule string
}

func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Key:      "quotagate:heartbeats",
		Window:   time.Minute,
		Schedule: "@every 30s",
	}
}

func (c *HeartbeatConfig) Validate() error {
	def := DefaultHeartbeatConfig()
	if c.Key == "" {
		c.Key = def.Key
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.Schedule == "" {
		c.Schedule = def.Schedule
	}
	v := validation.NewValidatorWithPrefix("heartbeat elector").
		RequireString(c.NodeIP, "node IP")
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		v.Add(errors.ValidationError("invalid heartbeat schedule: " + err.Error()))
	}
	return v.Error()
}

// HeartbeatElector elects the highest address among the nodes that
// heartbeated within the window. A leader that stops heartbeating loses
// leadership once its last heartbeat ages out.
type HeartbeatElector struct {
	client *goredis.Client
	config HeartbeatConfig
	clock  clock.PassiveClock
	logger logging.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewHeartbeatElector(client *goredis.Client, config HeartbeatConfig, clk clock.PassiveClock, logger logging.Logger) (*HeartbeatElector, error) {
	if client == nil {
		return nil, errors.ConfigError("redis client is required for the heartbeat elector")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = logging.Component("heartbeat_elector")
	}
	return &HeartbeatElector{
		client: client,
		config: config,
		clock:  clk,
		logger: logger.WithFields(logging.String("node_ip", config.NodeIP)),
	}, nil
}

// Start sends a heartbeat now and then on the configured schedule until
// Stop. A heartbeat still running when the next one is due is skipped.
func (h *HeartbeatElector) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cron != nil {
		return nil
	}

	if err := h.Heartbeat(ctx); err != nil {
		h.logger.Warn("Initial heartbeat failed", logging.Err(err))
	}

	cl := cronLogger{h.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(h.config.Schedule, func() {
		if err := h.Heartbeat(ctx); err != nil {
			h.logger.Error("Heartbeat failed", err)
		}
	}); err != nil {
		return errors.ConfigError("invalid heartbeat schedule: " + err.Error())
	}
	c.Start()
	h.cron = c
	return nil
}

// Stop halts heartbeats and waits for a running one to finish
func (h *HeartbeatElector) Stop() {
	h.mu.Lock()
	c := h.cron
	h.cron = nil
	h.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Heartbeat records this node as alive and prunes expired members
func (h *HeartbeatElector) Heartbeat(ctx context.Context) error {
	now := h.clock.Now().UnixMilli()
	cutoff := now - h.config.Window.Milliseconds()

	_, err := h.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, h.config.Key, &goredis.Z{Score: float64(now), Member: h.config.NodeIP})
		pipe.ZRemRangeByScore(ctx, h.config.Key, "-inf", "("+strconv.FormatInt(cutoff, 10))
		return nil
	})
	if err != nil {
		return errors.ConnectionError("heartbeat write failed", err)
	}
	return nil
}

// Members returns the nodes whose heartbeat is within the window
func (h *HeartbeatElector) Members(ctx context.Context) ([]string, error) {
	cutoff := h.clock.Now().UnixMilli() - h.config.Window.Milliseconds()
	members, err := h.client.ZRangeByScore(ctx, h.config.Key, &goredis.ZRangeBy{
		Min: strconv.FormatInt(cutoff, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, errors.ConnectionError("heartbeat read failed", err)
	}
	return members, nil
}

func (h *HeartbeatElector) LeaderIP(ctx context.Context) string {
	members, err := h.Members(ctx)
	if err != nil {
		h.logger.Warn("Cannot determine leader", logging.Err(err))
		return ""
	}
	leader := ""
	for _, m := range members {
		if leader == "" || higherIP(m, leader) {
			leader = m
		}
	}
	return leader
}

func (h *HeartbeatElector) IsLeader(ctx context.Context) bool {
	return h.LeaderIP(ctx) == h.config.NodeIP
}

// ElectLeader heartbeats and then checks the outcome
func (h *HeartbeatElector) ElectLeader(ctx context.Context) bool {
	if err := h.Heartbeat(ctx); err != nil {
		h.logger.Error("Heartbeat failed during election", err)
		return false
	}
	return h.IsLeader(ctx)
}

// cronLogger routes cron's own messages to the component logger
type cronLogger struct {
	logger logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debug(msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Error(msg, err, kvFields(keysAndValues)...)
}

func kvFields(kv []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, logging.Any(key, kv[i+1]))
	}
	return fields
}
