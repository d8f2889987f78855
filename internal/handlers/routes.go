package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// Handlers groups every HTTP handler for route registration
type Handlers struct {
	Health   *HealthHandler
	Chat     *ChatHandler
	Mood     *MoodHandler
	Memory   *MemoryHandler
	Journals *JournalHandler
	Prefs    *PreferencesHandler
	Data     *DataHandler
	ChatWS   *ChatWSHandler // optional
}

// Register mounts the routes. auth runs on every /api route; chatLimit only on chat messages.
func (h *Handlers) Register(app *fiber.App, auth, chatLimit fiber.Handler) {
	app.Get("/health", h.Health.Handle)

	api := app.Group("/api", auth)

	api.Post("/chat", chatLimit, h.Chat.SendMessage)
	api.Get("/chat/history", h.Chat.History)

	api.Get("/mood", h.Mood.GetMood)

	api.Get("/memories", h.Memory.ListMemories)
	api.Post("/memories", h.Memory.CreateMemory)
	api.Post("/memories/extract", h.Memory.TriggerExtraction)
	api.Delete("/memories/:id", h.Memory.DeleteMemory)
	api.Put("/settings/extraction", h.Memory.SetExtraction)

	api.Get("/journals", h.Journals.ListJournals)

	api.Get("/preferences", h.Prefs.GetPreferences)
	api.Post("/preferences/listening-mode", h.Prefs.SetListeningMode)

	api.Get("/export-all", h.Data.ExportAll)
	api.Post("/erase-all", h.Data.EraseAll)
	api.Get("/cache/stats", h.Health.CacheStats)

	if h.ChatWS != nil {
		app.Get("/ws/chat", RequireUpgrade, auth, h.ChatWS.Upgrade())
	}
}
