// Package observability configures structured logging for memlayer.
package observability

import (
	"log/slog"
	"os"

	"github.com/memlayer/memlayer/internal/config"
)

// Setup configures the global slog logger from the logging config
// (e.g. level "info", format "json").
func Setup(cfg config.LoggingConfig) {
	var lvl slog.Level
	switch cfg.Level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
