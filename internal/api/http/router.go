package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/subscription-reconciler/internal/api/http/handlers"
	"github.com/spec-kit/subscription-reconciler/internal/auth"
	"github.com/spec-kit/subscription-reconciler/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Reconcile      *handlers.ReconcileHandler
	AuthMiddleware *auth.AuthMiddleware
	// Gatherer serves /metrics when set.
	Gatherer    prometheus.Gatherer
	MetricsPath string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.Gatherer != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	internal := app.Group("/internal", cfg.AuthMiddleware.Handle, auth.RequireTrigger(domain.RoleAdmin))
	internal.Get("/reconcile", cfg.Reconcile.Trigger)
	internal.Post("/reconcile", cfg.Reconcile.Trigger)
}
