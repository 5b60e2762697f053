package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tutorlink/tutorlink-backend/internal/utils"
)

// JWTFromHeader validates the Authorization: Bearer token and stores the
// parsed claims for AttachJWTLocals.
func JWTFromHeader(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			return fiber.ErrUnauthorized
		}

		claims, err := utils.ParseJWT(secret, strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			return fiber.ErrUnauthorized
		}

		c.Locals("claims", claims)
		return c.Next()
	}
}
