package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"warmth/pkg/auth"
)

func newAuthApp(config AuthConfig) *fiber.App {
	app := fiber.New()
	app.Use(LocalAuthMiddleware(config))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(UserID(c))
	})
	return app
}

func body(t *testing.T, app *fiber.App, path, authHeader string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestLocalAuthMiddleware_DevBypass(t *testing.T) {
	app := newAuthApp(AuthConfig{})
	status, user := body(t, app, "/whoami", "")
	if status != fiber.StatusOK || user != "local_user" {
		t.Errorf("Expected local_user, got %d %q", status, user)
	}
}

func TestLocalAuthMiddleware_ProductionRequiresJWT(t *testing.T) {
	app := newAuthApp(AuthConfig{Production: true})
	if status, _ := body(t, app, "/whoami", ""); status != fiber.StatusServiceUnavailable {
		t.Errorf("Expected 503 without JWT in production, got %d", status)
	}
}

func TestLocalAuthMiddleware_JWT(t *testing.T) {
	jwtAuth, _ := auth.NewLocalJWTAuth("0123456789abcdef0123456789abcdef", time.Hour)
	token, _ := jwtAuth.GenerateAccessToken("user-7", "")
	app := newAuthApp(AuthConfig{JWT: jwtAuth})

	if status, user := body(t, app, "/whoami", "Bearer "+token); status != fiber.StatusOK || user != "user-7" {
		t.Errorf("Expected user-7 from header, got %d %q", status, user)
	}
	if status, user := body(t, app, "/whoami?token="+token, ""); status != fiber.StatusOK || user != "user-7" {
		t.Errorf("Expected user-7 from query, got %d %q", status, user)
	}
	if status, _ := body(t, app, "/whoami", ""); status != fiber.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", status)
	}
	if status, _ := body(t, app, "/whoami", "Bearer nope"); status != fiber.StatusUnauthorized {
		t.Errorf("Expected 401 for bad token, got %d", status)
	}
}

func TestChatRateLimiter(t *testing.T) {
	app := fiber.New()
	app.Use(LocalAuthMiddleware(AuthConfig{DefaultUserID: "u1"}))
	app.Use(ChatRateLimiter(&RateLimitConfig{ChatMax: 2, ChatExpiration: time.Minute}))
	app.Get("/chat", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for i := 0; i < 2; i++ {
		if status, _ := body(t, app, "/chat", ""); status != fiber.StatusOK {
			t.Fatalf("Expected request %d to pass, got %d", i+1, status)
		}
	}
	if status, _ := body(t, app, "/chat", ""); status != fiber.StatusTooManyRequests {
		t.Errorf("Expected 429 after limit, got %d", status)
	}
}

func TestNewRateLimitConfig_Defaults(t *testing.T) {
	config := NewRateLimitConfig(0, -1)
	if config.GlobalAPIMax != 200 || config.ChatMax != 30 {
		t.Errorf("Expected 200/30 fallbacks, got %d/%d", config.GlobalAPIMax, config.ChatMax)
	}
	if config.ChatExpiration != time.Minute {
		t.Errorf("Expected one minute window, got %v", config.ChatExpiration)
	}
}
