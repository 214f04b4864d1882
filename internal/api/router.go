// Package api exposes the operator HTTP surface.
package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/maheshrc27/clipcast/internal/api/handlers"
	"github.com/maheshrc27/clipcast/internal/api/middleware"
	"github.com/maheshrc27/clipcast/internal/app"
	"github.com/maheshrc27/clipcast/internal/queue"
)

// New builds the fiber app with every route registered.
func New(a *app.App, accessLog bool) *fiber.App {
	server := fiber.New(fiber.Config{
		AppName:      "clipcast",
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: errorHandler(a),
	})

	server.Use(recover.New())
	if accessLog {
		server.Use(logger.New())
	}
	server.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
		MaxAge:       3600,
	}))

	server.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	var enqueuer queue.Enqueuer
	if a.Queue != nil {
		enqueuer = a.Queue
	}

	platform := handlers.NewPlatformHandler(a.Config, a.Settings, a.Platforms, a.Log)
	server.Get("/auth/:platform/callback", platform.Callback)

	api := server.Group("/api")
	api.Use(middleware.NewAuthMiddleware(a.Config, a.Log).AuthMiddleware())

	auth := handlers.NewAuthHandler(a.Config)
	api.Post("/auth/token", auth.IssueToken)

	control := handlers.NewControlHandler(a.Scheduler, a.Selector, enqueuer, a.Log)
	api.Post("/tick", control.Tick)
	api.Post("/jobs/post-now", control.PostNow)
	api.Post("/refill/:platform", control.Refill)

	jobs := handlers.NewJobHandler(a.Jobs)
	api.Post("/jobs", jobs.Enqueue)
	api.Get("/jobs", jobs.List)
	api.Get("/jobs/:id", jobs.Get)

	settings := handlers.NewSettingsHandler(a.Settings)
	api.Get("/settings", settings.List)
	api.Get("/settings/:platform", settings.Get)
	api.Put("/settings/:platform", settings.Update)

	api.Post("/accounts/:platform", platform.LinkAccount)
	api.Get("/accounts/:platform/connect", platform.Connect)

	diagnostics := handlers.NewDiagnosticsHandler(a.Diagnostics)
	api.Get("/diagnostics", diagnostics.Diagnose)

	return server
}

func errorHandler(a *app.App) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			a.Log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}
