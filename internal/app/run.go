package app

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"quotagate/internal/common/distributed"
	"quotagate/internal/common/logging"
	"quotagate/internal/config"
	"quotagate/internal/server"
)

const shutdownTimeout = 30 * time.Second

// Run is the main entry point for the application
func Run() error {
	cfg := config.Load()
	if err := logging.InitGlobalLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		return err
	}
	defer logging.MustSync()

	logger := logging.Component("app")
	logger.Info("Starting quotagate", logging.Int("cpus", runtime.NumCPU()))

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize application", err)
		return err
	}
	defer app.Close()

	return app.Serve(ctx)
}

// Serve runs the HTTP server, the election loop and the event pipeline
// until ctx is cancelled or one of them fails.
func (app *App) Serve(ctx context.Context) error {
	srv := server.New(app.SetupRoutes(), app.Config.Port, app.Config.TLSCertFile, app.Config.TLSKeyFile)
	g, gctx := errgroup.WithContext(ctx)

	if app.heartbeat != nil {
		if err := app.heartbeat.Start(gctx); err != nil {
			return err
		}
	}

	g.Go(func() error {
		app.Logger.Info("HTTP server listening", logging.String("addr", srv.Addr()))
		return srv.ListenAndServe()
	})
	g.Go(func() error {
		<-gctx.Done()
		app.Logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	election := &distributed.FixedDelay{
		Name:   "election",
		Delay:  app.Config.ElectInterval,
		Clock:  app.Clock,
		Logger: app.Logger,
	}
	g.Go(func() error {
		return election.Run(gctx, app.elect())
	})

	pipeline := &distributed.FixedDelay{
		Name:         "pipeline",
		InitialDelay: app.Config.PipelineInitialDelay,
		Delay:        app.Config.PipelineDelay,
		Clock:        app.Clock,
		Logger:       app.Logger,
	}
	g.Go(func() error {
		return pipeline.Run(gctx, app.processBatch)
	})

	err := g.Wait()
	app.Logger.Info("Server exited")
	return err
}

// elect returns the election task. Heartbeat leadership follows from the
// cron heartbeats, so that elector is only observed.
func (app *App) elect() func(context.Context) error {
	var leader bool
	return func(ctx context.Context) error {
		var now bool
		if app.heartbeat != nil {
			now = app.Elector.IsLeader(ctx)
		} else {
			now = app.Elector.ElectLeader(ctx)
		}
		app.Metrics.SetLeader(now)

		if now != leader {
			leader = now
			app.Logger.Info("Leadership changed",
				logging.Bool("leader", now),
				logging.String("leader_ip", app.Elector.LeaderIP(ctx)),
			)
		}
		return nil
	}
}

func (app *App) processBatch(ctx context.Context) error {
	res, err := app.Consumer.ProcessBatch(ctx)
	if err != nil {
		return err
	}
	if res.Received == 0 {
		return nil
	}
	app.Logger.Debug("Processed throttle events",
		logging.Int("received", res.Received),
		logging.Int("applied", res.Applied),
		logging.Int("duplicates", res.Duplicates),
		logging.Int("poison", res.Poison),
		logging.Int("missing_records", res.MissingRecords),
		logging.Int("records_written", res.RecordsWritten),
		logging.Int("deferred", res.Deferred),
		logging.Int("deleted", res.Deleted),
	)
	return nil
}
