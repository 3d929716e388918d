package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/holyloy/komarce/internal/utils"
)

const (
	accountContextKey = "currentAccountID"
	roleContextKey    = "currentRole"
)

// AuthMiddleware validates JWT tokens and loads the authenticated account ID
// and role into context.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		accountID, role, err := utils.ParseToken(secret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(accountContextKey, accountID)
		c.Locals(roleContextKey, role)
		return c.Next()
	}
}

// RequireRole rejects requests whose token carries none of roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := GetCurrentRole(c)
		for _, allowed := range roles {
			if role == allowed {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "forbidden")
	}
}

// GetCurrentAccountID extracts the authenticated account ID from context.
func GetCurrentAccountID(c *fiber.Ctx) (uuid.UUID, bool) {
	value := c.Locals(accountContextKey)
	if value == nil {
		return uuid.Nil, false
	}

	if id, ok := value.(uuid.UUID); ok {
		return id, true
	}

	return uuid.Nil, false
}

// GetCurrentRole returns the role of the authenticated account.
func GetCurrentRole(c *fiber.Ctx) string {
	role, _ := c.Locals(roleContextKey).(string)
	return role
}
