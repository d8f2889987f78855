package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"warmth/internal/middleware"
)

const requestTimeout = 10 * time.Second

// requireUser returns the authenticated user id or writes a 401
func requireUser(c *fiber.Ctx) (string, bool) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
		return "", false
	}
	return userID, true
}

func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}
