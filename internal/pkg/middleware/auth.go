package middleware

import (
	"github.com/gofiber/fiber/v2"

	icuser "github.com/ManuelReschke/ConsultLedger/internal/pkg/usercontext"
)

// RequireOperator rejects requests that were not authenticated by an API key.
func RequireOperator(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return deny(c, fiber.StatusUnauthorized, "login required")
	}
	return c.Next()
}

// RequireAdmin ensures an authenticated admin operator.
func RequireAdmin(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return deny(c, fiber.StatusUnauthorized, "login required")
	}
	if !icuser.IsAdmin(c) {
		return deny(c, fiber.StatusForbidden, "admin role required")
	}
	return c.Next()
}
