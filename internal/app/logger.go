package app

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/heartmarshall/notetaken-sync/internal/config"
)

// NewLogger creates a *slog.Logger based on the provided LogConfig
// and sets it as the default logger via slog.SetDefault.
//
// Format "json" produces structured JSON output.
// Format "text" produces human-readable output with source info.
// Level is one of: debug, info, warn, error (case-insensitive); defaults to info.
// Output is os.Stderr, or a size-rotated file when cfg.File is set.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	logger := slog.New(newHandler(logOutput(cfg), cfg))
	slog.SetDefault(logger)
	return logger
}

func newHandler(w io.Writer, cfg config.LogConfig) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: strings.EqualFold(cfg.Format, "text"),
	}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func logOutput(cfg config.LogConfig) io.Writer {
	if cfg.File == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
