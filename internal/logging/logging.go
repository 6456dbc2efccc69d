// Package logging resolves slog loggers from configuration.
package logging

import (
	"log/slog"
	"os"
)

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Logger overrides the logger if provided.
	Logger *slog.Logger

	// Handler is used to build a logger if Logger is nil.
	Handler slog.Handler

	// Level is used when creating a default handler if Logger and Handler are nil.
	Level slog.Level

	// LogResponses enables logging model response summaries.
	LogResponses bool

	// LogToolCalls enables logging tool dispatch summaries.
	LogToolCalls bool
}

// DefaultLoggingConfig returns default logging configuration.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level: slog.LevelInfo,
	}
}

// ResolveLogger builds a logger from the configuration.
func ResolveLogger(cfg LoggingConfig) *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	if cfg.Handler != nil {
		return slog.New(cfg.Handler)
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level}))
}
