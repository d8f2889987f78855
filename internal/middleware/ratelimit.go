package middleware

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds the fixed-window request budgets
type RateLimitConfig struct {
	GlobalAPIMax        int // per IP, across every /api route
	GlobalAPIExpiration time.Duration

	// Every chat message costs at least one inference call, so it gets its own per-user budget
	ChatMax        int
	ChatExpiration time.Duration
}

// NewRateLimitConfig builds per-minute budgets; non-positive values fall back to 200 global and 30 chat
func NewRateLimitConfig(globalPerMinute, chatPerMinute int) *RateLimitConfig {
	if globalPerMinute <= 0 {
		globalPerMinute = 200
	}
	if chatPerMinute <= 0 {
		chatPerMinute = 30
	}
	return &RateLimitConfig{
		GlobalAPIMax:        globalPerMinute,
		GlobalAPIExpiration: time.Minute,
		ChatMax:             chatPerMinute,
		ChatExpiration:      time.Minute,
	}
}

func limitReached(c *fiber.Ctx, window time.Duration, message string) error {
	retryAfter := int(window.Seconds())
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":       message,
		"retry_after": retryAfter,
	})
}

// GlobalAPIRateLimiter limits all API requests per client IP
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return limitReached(c, config.GlobalAPIExpiration, "Too many requests. Please slow down.")
		},
	})
}

// ChatRateLimiter limits chat messages per user; it must run after LocalAuthMiddleware
func ChatRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.ChatMax,
		Expiration: config.ChatExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID := UserID(c); userID != "" {
				return "chat:" + userID
			}
			return "chat-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Chat limit reached for user: %s", UserID(c))
			return limitReached(c, config.ChatExpiration, "You're sending messages very quickly. Please wait a moment.")
		},
	})
}
