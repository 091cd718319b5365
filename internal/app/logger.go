package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production runs ship JSON lines;
// anything else gets the readable text handler. Every record carries the
// service name so the two binaries are distinguishable in shared sinks.
func NewLogger(cfg *Config) *slog.Logger {
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})
	}
	return slog.New(handler).With(slog.String("service", "powerdeck"))
}
