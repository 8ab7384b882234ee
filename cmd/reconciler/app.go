package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/spec-kit/subscription-reconciler/internal/billing"
	"github.com/spec-kit/subscription-reconciler/internal/config"
	"github.com/spec-kit/subscription-reconciler/internal/events"
	"github.com/spec-kit/subscription-reconciler/internal/observability"
	"github.com/spec-kit/subscription-reconciler/internal/persistence"
	"github.com/spec-kit/subscription-reconciler/internal/reconcile"
	"github.com/spec-kit/subscription-reconciler/internal/repository"
	"github.com/spec-kit/subscription-reconciler/internal/service"
	"github.com/spec-kit/subscription-reconciler/internal/worker"
)

// application holds the wired dependencies shared by serve and run.
type application struct {
	cfg        *config.Config
	logger     *zap.Logger
	postgres   *persistence.Postgres
	redis      *persistence.Redis
	registry   *prometheus.Registry
	metrics    *observability.Metrics
	reconciler *service.ReconcileService
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("configure redis: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	pool := pg.PoolHandle()
	identities := repository.NewIdentityRepository(pool)
	claims := repository.NewClaimsRepository(rdb.Client, cfg.Redis.KeyPrefix)
	runs := repository.NewRunRepository(pool)

	pager := billing.NewStripePager(cfg.Billing.StripeSecretKey, billing.StripeOptions{
		HTTPTimeout:       cfg.Billing.PageTimeout(),
		MaxNetworkRetries: cfg.Billing.MaxNetworkRetries,
		Logger:            logger,
	})
	source := billing.NewClient(pager, billing.ClientOptions{
		PageSize:    cfg.Billing.PageSize,
		PageTimeout: cfg.Billing.PageTimeout(),
		Logger:      logger,
	})

	engine := reconcile.NewEngine(source, identities, claims, reconcile.Options{
		Workers:      cfg.Reconcile.Workers,
		WriteTimeout: cfg.Reconcile.WriteTimeout(),
		ListTimeout:  cfg.Reconcile.ListTimeout(),
		RepairClaims: cfg.Reconcile.RepairClaims,
		DryRun:       cfg.Reconcile.DryRun,
		Logger:       logger.Named("reconcile"),
	})

	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartNotificationWorker(dispatcher, cfg.Notification, logger)

	reconciler := service.NewReconcileService(cfg.Reconcile.RunTimeout(), service.ReconcileDependencies{
		Engine:     engine,
		Runs:       runs,
		Metrics:    metrics,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	return &application{
		cfg:        cfg,
		logger:     logger,
		postgres:   pg,
		redis:      rdb,
		registry:   registry,
		metrics:    metrics,
		reconciler: reconciler,
	}, nil
}

func (a *application) Close() {
	a.redis.Close()
	a.postgres.Close()
	_ = a.logger.Sync()
}
