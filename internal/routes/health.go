package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		dbStatus := "ok"
		redisStatus := "ok"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB != nil {
			if err := d.DB.Ping(ctx); err != nil {
				dbStatus = err.Error()
			}
		}
		if d.Cache != nil {
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}

		if dbStatus != "ok" || redisStatus != "ok" {
			return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
				"status":  "degraded",
				"details": fiber.Map{"postgres": dbStatus, "redis": redisStatus},
			})
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"status": "healthy"})
	})
}
