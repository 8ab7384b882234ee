package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/subscription-reconciler/internal/api/http"
	"github.com/spec-kit/subscription-reconciler/internal/api/http/handlers"
	"github.com/spec-kit/subscription-reconciler/internal/auth"
	"github.com/spec-kit/subscription-reconciler/internal/service"
	"github.com/spec-kit/subscription-reconciler/internal/worker"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reconcile trigger, health and metrics endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := newApplication(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes, cfg.App.Name)
		if cfg.Auth.SchedulerSecretHash == "" {
			logger.Warn("AUTH_SCHEDULER_SECRET_HASH not set; only operator tokens can trigger runs")
		}

		server := fiber.New(fiber.Config{AppName: cfg.App.Name})
		httptransport.RegisterMiddlewares(server, logger, app.metrics, cfg.App.RequestTimeout())

		routes := httptransport.RouteConfig{
			Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
				"postgres": app.postgres,
				"redis":    app.redis,
			}),
			Reconcile:      handlers.NewReconcileHandler(app.reconciler),
			AuthMiddleware: auth.NewAuthMiddleware(tokens, cfg.Auth.SchedulerSecretHash),
		}
		if cfg.Metrics.Enabled {
			routes.Gatherer = app.registry
			routes.MetricsPath = cfg.Metrics.Path
		}
		httptransport.RegisterRoutes(server, routes)

		schedulerDone := worker.StartScheduler(ctx, worker.RunnerFunc(func(ctx context.Context, input service.RunInput) error {
			_, err := app.reconciler.Run(ctx, input)
			return err
		}), cfg.Reconcile.Interval(), logger)

		listenErr := make(chan error, 1)
		go func() {
			listenErr <- server.Listen(cfg.App.Addr())
		}()

		select {
		case err := <-listenErr:
			stop()
			<-schedulerDone
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Warn("fiber shutdown", zap.Error(err))
		}
		<-schedulerDone
		return nil
	},
}
