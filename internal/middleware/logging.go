package middleware

import (
	"time"

	"github.com/cloudvault/backend/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

// RequestLogger emits one structured event per completed request.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		fields := map[string]interface{}{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      c.Response().StatusCode(),
			"ip":          c.IP(),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if user := GetCurrentUser(c); user != nil {
			fields["user_id"] = user.ID.String()
		}
		logger.Info("http_request", fields)

		return err
	}
}

// SecurityLogger flags authorization failures so they stand out from
// ordinary request noise.
func SecurityLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if status == fiber.StatusUnauthorized || status == fiber.StatusForbidden {
			logger.Warn("security_rejection", map[string]interface{}{
				"method": c.Method(),
				"path":   c.Path(),
				"status": status,
				"ip":     c.IP(),
			})
		}

		return err
	}
}
