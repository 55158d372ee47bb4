package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/worksheet-grader/internal/config"
	"github.com/noah-isme/worksheet-grader/internal/handler"
	"github.com/noah-isme/worksheet-grader/internal/middleware"
	"github.com/noah-isme/worksheet-grader/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	WorksheetHandler     *handler.WorksheetHandler
	AdminErrorLogHandler *handler.AdminErrorLogHandler
	ProgressHandler      *handler.ProgressHandler
	JWTMiddleware        fiber.Handler
	HealthProbes         map[string]handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	if deps.WorksheetHandler != nil {
		worksheets := api.Group("/worksheets")
		deps.WorksheetHandler.Register(worksheets, middleware.RateLimit("worksheets:process", cfg.HTTPRateLimitMax, cfg.HTTPRateLimitWindow))
	}

	// Admin routes are only mounted when a JWT verifier is configured.
	if deps.AdminErrorLogHandler != nil && deps.JWTMiddleware != nil {
		admin := api.Group("/admin",
			deps.JWTMiddleware,
			middleware.RequireRole("admin", "teacher"),
			middleware.RateLimit("admin", cfg.HTTPRateLimitMax, cfg.HTTPRateLimitWindow),
		)
		deps.AdminErrorLogHandler.Register(admin)
	}

	if deps.ProgressHandler != nil {
		deps.ProgressHandler.Register(app.Group("/ws"))
	}
}
