package logger

import (
	"log/slog"
	"os"
)

// New builds the process logger: JSON at info level in prod, human-readable
// text at debug level everywhere else.
func New(env string) *slog.Logger {
	var h slog.Handler
	if env == "prod" {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(h).With("app", "kasilink-backend")
}
