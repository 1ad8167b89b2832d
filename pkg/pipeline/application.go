package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/footprint/pkg/ledger"
	"github.com/ethpandaops/footprint/pkg/redis"
	"github.com/ethpandaops/footprint/pkg/scheduler"
	"github.com/ethpandaops/footprint/pkg/server"
	"github.com/ethpandaops/footprint/pkg/store"
	"github.com/ethpandaops/footprint/pkg/store/postgis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Application owns the connections behind a Service
type Application struct {
	log    logrus.FieldLogger
	config *Config

	postgis     *postgis.Store
	redisClient *goredis.Client
	ledger      ledger.Ledger

	Service *Service
}

// NewApplication connects to the store and, when configured, to Redis
func NewApplication(ctx context.Context, log logrus.FieldLogger, cfg *Config) (*Application, error) {
	pg, err := postgis.New(log, &cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := pg.Start(ctx); err != nil {
		_ = pg.Close()
		return nil, err
	}

	app := &Application{
		log:     log.WithField("component", "application"),
		config:  cfg,
		postgis: pg,
		ledger:  ledger.NewNoop(),
	}

	if cfg.Redis.Enabled() {
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			_ = pg.Close()
			return nil, err
		}

		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = pg.Close()

			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		app.redisClient = client
		app.ledger = ledger.NewRedis(log, client, cfg.Redis.Prefix)
	}

	svc, err := NewService(log, cfg, store.Instrument(pg), app.ledger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Service = svc

	return app, nil
}

// Config returns the configuration the application was created with
func (a *Application) Config() *Config {
	return a.config
}

// Ledger returns the run ledger, a no-op one when Redis is not configured
func (a *Application) Ledger() ledger.Ledger {
	return a.ledger
}

// Health checks the store and Redis are reachable
func (a *Application) Health(ctx context.Context) error {
	if err := a.postgis.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	return nil
}

// Watch re-runs the pipeline on the configured schedule until ctx is done or a
// signal arrives, serving metrics and health checks alongside. With Redis
// configured only one watcher per prefix runs the pipeline.
func (a *Application) Watch(ctx context.Context) error {
	prefix := ""
	if a.config.Redis.Enabled() {
		prefix = a.config.Redis.Prefix
	}

	sched, err := scheduler.NewService(a.log, &a.config.Watch, a.redisClient, prefix, func(ctx context.Context) error {
		_, err := a.Service.Run(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	srv, err := server.NewServer(a.log, &a.config.Server, a.Health)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx, sched.Run)
}

// Close releases the store and Redis connections
func (a *Application) Close() error {
	var errs []error

	if err := a.ledger.Close(); err != nil {
		errs = append(errs, err)
	}

	if err := a.postgis.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
