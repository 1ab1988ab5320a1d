package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/zkvault/zkvault/internal/auth"
	"github.com/zkvault/zkvault/internal/middleware"
)

// RegisterAuthRoutes wires the authentication endpoints. The public ones
// are rate-limited per operation class; change-password and delete-account
// additionally require a bearer token.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, authSvc *auth.Service, limiter middleware.Limiter) {
	group := r.Group("/auth")

	group.Post("/register", middleware.RateLimit(limiter, middleware.RegisterLimit), h.Register)
	group.Post("/login", middleware.RateLimit(limiter, middleware.LoginLimit), h.Login)
	group.Post("/wallet/register", middleware.RateLimit(limiter, middleware.RegisterLimit), h.RegisterWallet)
	group.Post("/wallet/login", middleware.RateLimit(limiter, middleware.LoginLimit), h.LoginWallet)
	group.Get("/salts", middleware.RateLimit(limiter, middleware.SaltsLimit), h.Salts)

	bearer := middleware.BearerAuth(authSvc)
	group.Post("/change-password", bearer, middleware.RateLimit(limiter, middleware.ChangePasswordLimit), h.ChangePassword)
	group.Delete("/account", bearer, h.DeleteAccount)
}
