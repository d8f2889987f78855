package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"warmth/pkg/auth"
)

// LocalsUserID is the fiber.Ctx locals key holding the authenticated user id
const LocalsUserID = "user_id"

// AuthConfig controls the local auth middleware
type AuthConfig struct {
	// JWT verifies bearer tokens. When nil, every request runs as DefaultUserID,
	// which is only permitted outside production.
	JWT           *auth.LocalJWTAuth
	DefaultUserID string
	Production    bool
}

// LocalAuthMiddleware verifies local JWT tokens and stores the user id (the "sub" claim) in Locals.
// Supports both Authorization header and query parameter.
func LocalAuthMiddleware(config AuthConfig) fiber.Handler {
	if config.DefaultUserID == "" {
		config.DefaultUserID = "local_user"
	}
	if config.JWT == nil && !config.Production {
		log.Printf("⚠️  Auth disabled: all requests run as %q (development mode)", config.DefaultUserID)
	}

	return func(c *fiber.Ctx) error {
		if config.JWT == nil {
			// Never allow auth bypass in production
			if config.Production {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "Authentication service unavailable",
				})
			}
			c.Locals(LocalsUserID, config.DefaultUserID)
			return c.Next()
		}

		// Try to extract token from multiple sources
		var token string

		// 1. Try Authorization header first
		if authHeader := c.Get("Authorization"); authHeader != "" {
			if extractedToken, err := auth.ExtractToken(authHeader); err == nil {
				token = extractedToken
			}
		}

		// 2. Try query parameter
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid authorization token",
			})
		}

		user, err := config.JWT.VerifyAccessToken(token)
		if err != nil {
			log.Printf("❌ Auth failed: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(LocalsUserID, user.ID)
		return c.Next()
	}
}

// UserID returns the authenticated user id, or "" when the middleware did not run
func UserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(LocalsUserID).(string)
	return userID
}
