package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"warmth/internal/middleware"
	"warmth/internal/services"
)

const (
	wsReadTimeout  = 360 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteBuffer  = 16
)

type wsClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type wsServerMessage struct {
	Type         string `json:"type"`
	Content      string `json:"content,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// ChatWSHandler serves the conversation over a websocket. Messages on one connection are answered in order.
type ChatWSHandler struct {
	companion *services.CompanionService
	timeout   time.Duration
	config    websocket.Config
}

// NewChatWSHandler creates a websocket chat handler; origins restricts the upgrade like CORS does
func NewChatWSHandler(companion *services.CompanionService, timeout time.Duration, origins []string) *ChatWSHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatWSHandler{
		companion: companion,
		timeout:   timeout,
		config:    websocket.Config{Origins: origins},
	}
}

// RequireUpgrade rejects plain HTTP requests on websocket routes
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Upgrade returns the fiber handler that performs the websocket handshake
func (h *ChatWSHandler) Upgrade() fiber.Handler {
	return websocket.New(h.Handle, h.config)
}

// Handle runs one websocket connection
func (h *ChatWSHandler) Handle(c *websocket.Conn) {
	userID, _ := c.Locals(middleware.LocalsUserID).(string)
	if userID == "" {
		c.WriteJSON(wsServerMessage{Type: "error", ErrorCode: "unauthorized", ErrorMessage: "Authentication required"})
		return
	}

	var writeMu sync.Mutex
	writes := make(chan wsServerMessage, wsWriteBuffer)
	done := make(chan struct{})
	defer close(done)

	c.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	go h.pingLoop(c, &writeMu, done)
	go h.writeLoop(c, &writeMu, writes)
	defer close(writes)

	writes <- wsServerMessage{Type: "connected", Content: "WebSocket connected. Ready to receive messages."}
	log.Printf("🔌 [CHAT-WS] User %s connected", userID)

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			log.Printf("🔌 [CHAT-WS] User %s disconnected: %v", userID, err)
			return
		}
		c.SetReadDeadline(time.Now().Add(wsReadTimeout))

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		reply := h.respond(ctx, userID, raw)
		cancel()
		writes <- reply
	}
}

// respond turns one client frame into the frame sent back
func (h *ChatWSHandler) respond(ctx context.Context, userID string, raw []byte) wsServerMessage {
	var msg wsClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return wsServerMessage{Type: "error", ErrorCode: "invalid_format", ErrorMessage: "Invalid message format"}
	}

	switch msg.Type {
	case "ping":
		return wsServerMessage{Type: "pong"}
	case "chat_message":
	default:
		return wsServerMessage{Type: "error", ErrorCode: "unknown_type", ErrorMessage: "Unknown message type"}
	}

	content := strings.TrimSpace(msg.Content)
	if len(content) > maxMessageLength {
		return wsServerMessage{Type: "error", ErrorCode: "too_long", ErrorMessage: "Message is too long"}
	}

	reply, err := h.companion.GenerateReply(ctx, userID, content)
	if errors.Is(err, services.ErrEmptyInput) {
		return wsServerMessage{Type: "error", ErrorCode: "empty_message", ErrorMessage: "Message is required"}
	}
	if err != nil {
		log.Printf("❌ [CHAT-WS] Failed to generate reply for user %s: %v", userID, err)
		return wsServerMessage{Type: "error", ErrorCode: "reply_failed", ErrorMessage: "Failed to generate reply"}
	}

	return wsServerMessage{Type: "reply", Content: reply, Timestamp: time.Now().Format(time.RFC3339)}
}

func (h *ChatWSHandler) writeLoop(c *websocket.Conn, writeMu *sync.Mutex, writes <-chan wsServerMessage) {
	for msg := range writes {
		writeMu.Lock()
		err := c.WriteJSON(msg)
		writeMu.Unlock()
		// keep draining after errors so the read loop never blocks on a dead connection
		if err != nil {
			log.Printf("❌ [CHAT-WS] Write error: %v", err)
		}
	}
}

func (h *ChatWSHandler) pingLoop(c *websocket.Conn, writeMu *sync.Mutex, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
