package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/somaprep/somaprep-backend/internal/config"
	"github.com/somaprep/somaprep-backend/internal/dto"
)

// AdminRequired guards the reconciliation endpoints with the admin token.
// When a bcrypt hash is configured it takes precedence over the plain
// token so the secret never sits in the environment in clear.
func AdminRequired(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get("X-Admin-Token")
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		if cfg.AdminTokenBcrypt != "" {
			if bcrypt.CompareHashAndPassword([]byte(cfg.AdminTokenBcrypt), []byte(token)) == nil {
				return c.Next()
			}
		} else if cfg.AdminToken != "" {
			if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.AdminToken)) == 1 {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "Admin access required",
		})
	}
}
