package app

import (
	"context"
	"fmt"

	"quotagate/internal/brokers"
	awsqueue "quotagate/internal/brokers/aws"
	redisqueue "quotagate/internal/brokers/redis"
	"quotagate/internal/common/awsutil"
	"quotagate/internal/common/distributed"
	"quotagate/internal/common/logging"
	"quotagate/internal/quota"
	"quotagate/internal/redis"
	"quotagate/internal/storage"
	"quotagate/internal/storage/dynamo"
	"quotagate/internal/storage/redisstore"
	"quotagate/internal/storage/sqlstore"
)

func (app *App) initializeRedis(context.Context) error {
	if !app.Config.UsesRedis() {
		app.Logger.Info("Redis: not required by the configured backends")
		return nil
	}

	client, err := redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDB,
		PoolSize: app.Config.RedisPoolSize,
	})
	if err != nil {
		return err
	}
	app.RedisClient = client
	app.Logger.Info("Redis: connected", logging.String("address", app.Config.RedisAddress))
	return nil
}

func (app *App) awsConfig() awsutil.Config {
	return awsutil.Config{
		Region:          app.Config.AWSRegion,
		AccessKeyID:     app.Config.AWSAccessKeyID,
		SecretAccessKey: app.Config.AWSSecretAccessKey,
		SessionToken:    app.Config.AWSSessionToken,
		EndpointURL:     app.Config.AWSEndpointURL,
	}
}

// storageRegistry registers every store backend. Factories close over the
// app so they only touch Redis or AWS when actually selected.
func (app *App) storageRegistry() *storage.Registry {
	r := storage.NewRegistry()
	r.Register("memory", func(context.Context) (storage.QuotaStore, error) {
		return storage.NewMemoryStore(), nil
	})
	r.Register("dynamodb", func(ctx context.Context) (storage.QuotaStore, error) {
		return dynamo.New(ctx, dynamo.Config{
			AWS:            app.awsConfig(),
			TableName:      app.Config.DynamoTable,
			ConsistentRead: app.Config.DynamoConsistentRead,
		})
	})
	r.Register("redis", func(context.Context) (storage.QuotaStore, error) {
		return redisstore.New(app.RedisClient, redisstore.DefaultPrefix), nil
	})
	r.Register("postgres", func(ctx context.Context) (storage.QuotaStore, error) {
		return sqlstore.Open(ctx, sqlstore.Config{Dialect: sqlstore.Postgres, DSN: app.Config.DatabaseURL})
	})
	r.Register("sqlite", func(ctx context.Context) (storage.QuotaStore, error) {
		return sqlstore.Open(ctx, sqlstore.Config{Dialect: sqlstore.SQLite, DSN: app.Config.SQLitePath})
	})
	return r
}

func (app *App) queueRegistry() *brokers.Registry {
	r := brokers.NewRegistry()
	r.Register("memory", func(context.Context) (brokers.Queue, error) {
		return brokers.NewMemoryQueue(app.Clock, brokers.DefaultVisibilityTimeout), nil
	})
	r.Register("sqs", func(ctx context.Context) (brokers.Queue, error) {
		cfg := awsqueue.DefaultConfig()
		cfg.AWS = app.awsConfig()
		cfg.QueueURL = app.Config.SQSQueueURL
		cfg.QueueName = app.Config.SQSQueueName
		cfg.CreateIfMissing = app.Config.SQSCreateQueue
		cfg.RetentionSeconds = int32(app.Config.SQSRetentionSeconds)
		return awsqueue.NewQueue(ctx, cfg)
	})
	r.Register("redis", func(ctx context.Context) (brokers.Queue, error) {
		return redisqueue.NewQueue(ctx, app.RedisClient.Redis(), redisqueue.DefaultConfig())
	})
	return r
}

func (app *App) initializeStorage(ctx context.Context) error {
	store, err := app.storageRegistry().Create(ctx, app.Config.StoreBackend)
	if err != nil {
		return fmt.Errorf("failed to initialize quota store: %w", err)
	}
	app.Store = store
	app.Logger.Info("Quota store ready", logging.String("backend", app.Config.StoreBackend))
	return nil
}

// seedQuotas loads SEED_FILE into the store, replacing records with the same key
func (app *App) seedQuotas(ctx context.Context) error {
	if app.Config.SeedFile == "" {
		return nil
	}
	records, err := quota.LoadSeedFile(app.Config.SeedFile)
	if err != nil {
		return err
	}
	if err := storage.PutAll(ctx, app.Store, records); err != nil {
		return fmt.Errorf("failed to seed quota records: %w", err)
	}
	app.Logger.Info("Seeded quota records",
		logging.String("file", app.Config.SeedFile),
		logging.Int("records", len(records)),
	)
	return nil
}

func (app *App) initializeQueue(ctx context.Context) error {
	queue, err := app.queueRegistry().Create(ctx, app.Config.QueueBackend)
	if err != nil {
		return fmt.Errorf("failed to initialize event queue: %w", err)
	}
	app.Queue = queue
	app.Logger.Info("Event queue ready", logging.String("backend", app.Config.QueueBackend))
	return nil
}

func (app *App) initializeElector(context.Context) error {
	switch app.Config.Elector {
	case "heartbeat":
		h, err := distributed.NewHeartbeatElector(app.RedisClient.Redis(), distributed.HeartbeatConfig{
			NodeIP:   app.Config.NodeIP,
			Window:   app.Config.LeaderWindow,
			Schedule: app.Config.HeartbeatSchedule,
		}, app.Clock, nil)
		if err != nil {
			return err
		}
		app.heartbeat = h
		app.Elector = h
	case "lease":
		l, err := distributed.NewLeaseElector(app.RedisClient.Redis(), distributed.LeaseConfig{
			NodeIP: app.Config.NodeIP,
			TTL:    app.Config.LeaseTTL,
		}, nil)
		if err != nil {
			return err
		}
		app.lease = l
		app.Elector = l
	default:
		app.Elector = distributed.SelfElector{}
	}
	return nil
}
