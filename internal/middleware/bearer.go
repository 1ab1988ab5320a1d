package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/zkvault/zkvault/internal/apperr"
	"github.com/zkvault/zkvault/internal/auth"
)

const identityLocal = "identity"

// BearerAuth resolves the Authorization header into a full identity record.
// Tokens minted before the identity's last credential rotation are rejected,
// so a password change revokes every outstanding session.
func BearerAuth(authSvc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return apperr.AuthFailed("missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])

		user, err := authSvc.ResolveToken(c.UserContext(), tokenStr)
		if err != nil {
			return err
		}

		c.Locals(identityLocal, user)
		return c.Next()
	}
}
