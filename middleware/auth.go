// middleware/auth.go
package middleware

import (
	"strings"

	"sips-gamification/logger"

	"github.com/gofiber/fiber/v2"
)

const (
	LocalUserID    = "user_id"
	LocalUserRoles = "user_roles"
)

// UserContextMiddleware extracts user identity and roles set by Gateway.
// Paths under /s/ must carry X-User-ID.
func UserContextMiddleware(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		rolesStr := c.Get("X-User-Roles")

		path := c.Path()
		if strings.HasPrefix(path, "/s/") && userID == "" {
			log.Warn("❌ [USER_CTX] X-User-ID required but missing on secured route", "path", path)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		var roles []string
		if rolesStr != "" {
			for _, r := range strings.Split(rolesStr, ",") {
				r = strings.TrimSpace(r)
				if r != "" {
					roles = append(roles, r)
				}
			}
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalUserRoles, roles)

		log.Debug("👤 [USER_CTX]", "user_id", userID, "roles", roles, "path", path)
		return c.Next()
	}
}

// RequireRole rejects requests whose user context lacks role. Must run after UserContextMiddleware.
func RequireRole(role string, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if HasRole(c, role) {
			return c.Next()
		}
		log.Warn("⛔ [USER_CTX] role required", "role", role, "user_id", c.Locals(LocalUserID), "path", c.Path())
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient role",
		})
	}
}

// HasRole reports whether the gateway user context carries role (case-insensitive).
func HasRole(c *fiber.Ctx, role string) bool {
	roles, _ := c.Locals(LocalUserRoles).([]string)
	for _, r := range roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// UserID returns the gateway-supplied user id, or "" when absent.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
