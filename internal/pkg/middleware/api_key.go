package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ConsultLedger/app/models"
	"github.com/ManuelReschke/ConsultLedger/app/repository"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/usercontext"
)

// APIKeyAuthMiddleware authenticates requests carrying an operator API key header.
func APIKeyAuthMiddleware(users repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return deny(c, fiber.StatusUnauthorized, "Missing API key")
		}

		keyID, secret, ok := models.SplitAPIKey(apiKey)
		if !ok {
			return deny(c, fiber.StatusUnauthorized, "Invalid API key")
		}

		user, err := users.GetByAPIKeyID(keyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return deny(c, fiber.StatusUnauthorized, "Invalid API key")
			}
			log.Errorf("[Auth] API key lookup failed: %v", err)
			return deny(c, fiber.StatusInternalServerError, "API key verification failed")
		}
		if !user.CheckAPIKeySecret(secret) {
			return deny(c, fiber.StatusUnauthorized, "Invalid API key")
		}
		if !user.IsActive() {
			return deny(c, fiber.StatusForbidden, "Operator inactive")
		}

		// Refresh last-used timestamp best-effort.
		if err := users.TouchAPIKeyUsage(user.ID, time.Now()); err != nil {
			log.Warnf("[Auth] Failed to update api key usage timestamp for operator %d: %v", user.ID, err)
		}

		usercontext.Set(c, usercontext.UserContext{
			UserID:     user.ID,
			Username:   user.Name,
			Email:      user.Email,
			Role:       user.Role,
			IsLoggedIn: true,
			IsAdmin:    user.IsAdmin(),
		})

		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func deny(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "message": message})
}
