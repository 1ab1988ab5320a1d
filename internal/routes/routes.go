package routes

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/zkvault/zkvault/internal/auth"
	"github.com/zkvault/zkvault/internal/config"
	"github.com/zkvault/zkvault/internal/middleware"
	"github.com/zkvault/zkvault/internal/notification"
	"github.com/zkvault/zkvault/internal/sechash"
	"github.com/zkvault/zkvault/internal/store"
	"github.com/zkvault/zkvault/internal/vault"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. A nil DB falls
// back to in-memory storage and a nil Cache to an in-process rate limiter;
// both are meant for dev mode and tests only.
func Setup(app *fiber.App, d Deps) error {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	var st store.Store
	if d.DB != nil {
		st = store.NewPostgresStore(d.DB)
	} else {
		st = store.NewMemoryStore()
	}

	hasher := sechash.New(d.Cfg.Argon2)
	tokens := auth.NewTokenIssuer([]byte(d.Cfg.JWTSecret), d.Cfg.TokenTTL)
	notifier := notification.NewLoggerNotifier(d.Logger)
	authSvc := auth.NewService(st, hasher, tokens, notifier, d.Logger)
	vaultSvc := vault.NewService(st.Vaults())

	var limiter middleware.Limiter
	if d.Cache != nil {
		limiter = middleware.NewRedisLimiter(d.Cache)
	} else {
		limiter = middleware.NewMemoryLimiter()
	}

	RegisterHealthRoutes(app, d)
	RegisterAuthRoutes(app, auth.NewHandler(authSvc), authSvc, limiter)
	RegisterVaultRoutes(app, vault.NewHandler(vaultSvc), authSvc, d)

	return nil
}
