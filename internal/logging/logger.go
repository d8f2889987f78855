package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output at Info for log aggregation.
// Otherwise it uses the human-readable text handler at Debug.
func Init() {
	InitWithWriter(os.Stdout, os.Getenv("ENVIRONMENT"))
}

// InitWithWriter configures the global logger to write to w for the given environment
func InitWithWriter(w io.Writer, environment string) {
	var handler slog.Handler
	if strings.ToLower(environment) == "production" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithUser returns a logger carrying the user id.
// Every core call receives the user explicitly, so this is the only place it is attached.
func WithUser(userID string) *slog.Logger {
	return slog.With("user_id", userID)
}

// WithJob returns a logger scoped to a background job run for one user.
func WithJob(logger *slog.Logger, jobName string) *slog.Logger {
	return logger.With("job", jobName)
}
