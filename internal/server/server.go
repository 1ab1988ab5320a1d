package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/zkvault/zkvault/internal/apperr"
	"github.com/zkvault/zkvault/internal/config"
	"github.com/zkvault/zkvault/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app   *fiber.App
	cfg   config.Config
	db    *pgxpool.Pool
	cache *redis.Client
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: ErrorHandler(logger),
	})

	if err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger}); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, db: db, cache: cache}, nil
}

// App exposes the underlying Fiber application for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// ErrorHandler renders every failure as the standardized error body
// {"error": {"code", "message", "details"}} with the status the error
// carries. Unauthorized responses gain a WWW-Authenticate challenge.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		e := mapError(err)

		if e.Status == http.StatusInternalServerError && logger != nil {
			logger.Error("request failed", "path", c.Path(), "error", err)
		}
		if e.Status == http.StatusUnauthorized {
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
		}

		details := e.Details
		if details == nil {
			details = map[string]any{}
		}
		return c.Status(e.Status).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    e.Code,
				"message": e.Message,
				"details": details,
			},
		})
	}
}

// mapError normalizes Fiber-native errors (unknown routes, middleware
// failures) into the taxonomy before rendering.
func mapError(err error) *apperr.Error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		e := &apperr.Error{Message: fiberErr.Message, Status: fiberErr.Code}
		switch fiberErr.Code {
		case http.StatusNotFound:
			e.Code = apperr.CodeNotFound
		case http.StatusUnauthorized:
			e.Code = apperr.CodeAuthFailed
		case http.StatusConflict:
			e.Code = apperr.CodeAlreadyExists
		case http.StatusTooManyRequests:
			e.Code = apperr.CodeRateLimited
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			e.Code = apperr.CodeValidation
		default:
			e.Code = apperr.CodeInternal
		}
		return e
	}

	return apperr.From(err)
}
