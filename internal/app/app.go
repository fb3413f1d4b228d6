package app

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"k8s.io/utils/clock"

	"quotagate/internal/brokers"
	"quotagate/internal/circuitbreaker"
	"quotagate/internal/common/cache"
	"quotagate/internal/common/distributed"
	"quotagate/internal/common/logging"
	"quotagate/internal/common/ratelimit"
	"quotagate/internal/config"
	"quotagate/internal/consumer"
	"quotagate/internal/handlers"
	"quotagate/internal/metrics"
	"quotagate/internal/redis"
	"quotagate/internal/storage"
)

// App holds all the application dependencies
type App struct {
	Config   *config.Config
	Logger   logging.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Clock    clock.Clock

	RedisClient *redis.Client
	Store       storage.QuotaStore
	Queue       brokers.Queue
	Elector     distributed.Elector
	Seen        cache.Cache

	Buckets   *ratelimit.Buckets
	Breaker   *circuitbreaker.GoBreakerAdapter
	Publisher *ratelimit.QueuePublisher
	Engine    *ratelimit.Engine
	Consumer  *consumer.Consumer
	Handlers  *handlers.Handlers

	heartbeat *distributed.HeartbeatElector
	lease     *distributed.LeaseElector
}

// New creates the application with all dependencies. On failure whatever
// was already opened is closed again.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.Component("app"),
		Clock:  clock.RealClock{},
	}
	app.initializeMetrics()

	steps := []func(context.Context) error{
		app.initializeRedis,
		app.initializeStorage,
		app.seedQuotas,
		app.initializeQueue,
		app.initializeElector,
		app.initializeDedup,
		app.initializeAdmission,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			app.Close()
			return nil, err
		}
	}

	app.Consumer = consumer.New(app.Queue, app.Store, app.Elector,
		consumer.WithDedup(app.Seen, cfg.DedupTTL),
		consumer.WithBatchSize(cfg.PipelineBatchSize),
		consumer.WithMetrics(app.Metrics),
	)
	app.Handlers = handlers.New(cfg.NodeID, app.Elector, app.healthChecks()...)

	app.Logger.Info("Application initialized",
		logging.String("node_id", cfg.NodeID),
		logging.String("node_ip", cfg.NodeIP),
		logging.String("store", cfg.StoreBackend),
		logging.String("queue", cfg.QueueBackend),
		logging.String("elector", cfg.Elector),
	)
	return app, nil
}

func (app *App) initializeMetrics() {
	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = metrics.New(app.Registry)
}

func (app *App) initializeDedup(context.Context) error {
	cfg := cache.DefaultConfig()
	cfg.Type = cache.Type(app.Config.DedupBackend)
	cfg.TTL = app.Config.DedupTTL
	if app.RedisClient != nil {
		cfg.RedisClient = app.RedisClient.Redis()
	}
	seen, err := cache.New(cfg)
	if err != nil {
		return err
	}
	app.Seen = seen
	return nil
}

func (app *App) initializeAdmission(context.Context) error {
	buckets, err := ratelimit.NewBuckets(ratelimit.BucketConfig{
		Size:           app.Config.BucketSize,
		RefillInterval: app.Config.RefillInterval,
	}, app.Clock)
	if err != nil {
		return err
	}
	app.Buckets = buckets

	app.Breaker = circuitbreaker.NewGoBreaker("event-queue", circuitbreaker.DefaultConfig(),
		logging.Component("circuit_breaker"),
		func(s circuitbreaker.State) { app.Metrics.SetBreakerState("event-queue", int(s)) },
	)
	app.Publisher = ratelimit.NewQueuePublisher(app.Queue, app.Breaker, ratelimit.PublisherConfig{
		MaxInFlight: app.Config.PublishMaxInFlight,
		Timeout:     app.Config.PublishTimeout,
	}, nil, app.Metrics)

	app.Engine = ratelimit.NewEngine(app.Store, app.Publisher,
		ratelimit.WithClock(app.Clock),
		ratelimit.WithMetrics(app.Metrics),
	)
	return nil
}

func (app *App) healthChecks() []handlers.Check {
	var checks []handlers.Check
	if hc, ok := app.Store.(storage.HealthChecker); ok {
		checks = append(checks, handlers.Check{Name: "store", Probe: hc.Health})
	}
	if hc, ok := app.Queue.(brokers.HealthChecker); ok {
		checks = append(checks, handlers.Check{Name: "queue", Probe: hc.Health})
	}
	if app.RedisClient != nil {
		checks = append(checks, handlers.Check{Name: "redis", Probe: func(context.Context) error {
			return app.RedisClient.Health()
		}})
	}
	return checks
}

// Close releases all resources. Pending publishes get a bounded wait first.
func (app *App) Close() {
	if app.Publisher != nil {
		if err := app.Publisher.Close(); err != nil {
			app.Logger.Warn("Publisher did not drain", logging.Err(err))
		}
	}
	if app.heartbeat != nil {
		app.heartbeat.Stop()
	}
	if app.lease != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := app.lease.Resign(ctx); err != nil {
			app.Logger.Warn("Failed to resign leadership", logging.Err(err))
		}
		cancel()
	}
	if app.Queue != nil {
		_ = app.Queue.Close()
	}
	if app.Store != nil {
		_ = app.Store.Close()
	}
	if app.RedisClient != nil {
		_ = app.RedisClient.Close()
	}
}
