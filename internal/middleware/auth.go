package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/playarena/credit_engine/internal/security"
)

// RequireToken validates the Bearer token on mutating routes and stores
// its claims in the request context. The webhook route is exempt; the
// gateway authenticates via its own signature scheme.
func RequireToken(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing bearer token",
			})
		}

		claims, err := security.ValidateJWT(strings.TrimPrefix(header, "Bearer "), secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		c.Locals("claims", claims)
		return c.Next()
	}
}

// Limit applies the in-memory rate limiter per client IP and, when
// claims are present, per account.
func Limit(rl *RateLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rl.AllowIP(c.IP()) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}

		if claims, ok := c.Locals("claims").(*security.Claims); ok && claims.AccountID != "" {
			if !rl.AllowAccount(claims.AccountID) {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "rate limit exceeded",
				})
			}
		}

		return c.Next()
	}
}
