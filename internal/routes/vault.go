package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zkvault/zkvault/internal/auth"
	"github.com/zkvault/zkvault/internal/middleware"
	"github.com/zkvault/zkvault/internal/vault"
)

// RegisterVaultRoutes wires the bearer-authenticated vault CRUD endpoints.
// Vault writes optionally honor an Idempotency-Key header when Redis is up.
func RegisterVaultRoutes(r fiber.Router, h *vault.Handler, authSvc *auth.Service, d Deps) {
	bearer := middleware.BearerAuth(authSvc)
	group := r.Group("/vault", bearer)

	if d.Cache != nil {
		group.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	group.Post("/", h.Create)
	group.Get("/:vault_id", h.Get)
	group.Put("/:vault_id", h.Update)
	group.Delete("/:vault_id", h.Delete)
}
