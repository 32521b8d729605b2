package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cashi/auth-core/internal/infrastructure/config"
)

const (
	serviceName = "authcore"

	// Redacted replaces the value of any attribute with a sensitive key.
	Redacted = "[REDACTED]"
)

// sensitiveKeys are attribute keys whose values never reach the output,
// matched case-insensitively at any group depth.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"secret":        {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"authorization": {},
}

// Logger is the auth core's slog.Logger. Every entry carries the service
// name and build version. Safe for concurrent use.
type Logger struct {
	*slog.Logger

	// file is the rotating writer when output is "file".
	file io.Closer
}

// New builds a logger from the logging section of config.yaml.
func New(cfg config.LoggingConfig, version string) *Logger {
	w, file := openOutput(cfg)
	l := NewWithWriter(w, cfg, version)
	l.file = file
	return l
}

// openOutput resolves logging.output. Unknown values fall back to stdout.
func openOutput(cfg config.LoggingConfig) (io.Writer, io.Closer) {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return os.Stderr, nil
	case "file":
		rotator := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
		return rotator, rotator
	default:
		return os.Stdout, nil
	}
}

// NewWithWriter builds a logger writing to w regardless of cfg.Output.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	}))}
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, Redacted)
	}
	return a
}

// parseLevel maps debug, info, warn and error; anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger with extra attributes.
//
//	store := logger.With("component", "token_store")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Close releases the rotating log file, if any. Children made with With
// share the parent's file and are not closed separately.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Default is the JSON stdout logger used before config is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
