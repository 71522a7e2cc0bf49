package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelOff disables all output.
const LevelOff = slog.Level(100)

// Config holds logger configuration.
type Config struct {
	// Level is debug, info, warn, error or off.
	Level string
	// Format is json or text.
	Format string
	// Output defaults to os.Stderr.
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

var globalLevel = new(slog.LevelVar)

// New creates a logger and sets the global level from cfg.
func New(cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	globalLevel.Set(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     globalLevel,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text", "console":
		handler = slog.NewTextHandler(output, opts)
	case "json", "":
		handler = slog.NewJSONHandler(output, opts)
	default:
		return nil, fmt.Errorf("logger: unknown format %q", cfg.Format)
	}
	return slog.New(handler), nil
}

// Discard returns a logger that writes nothing.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: LevelOff}))
}

// SetLevel changes the global level. Unknown names are ignored.
func SetLevel(level string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}
	globalLevel.Set(l)
	return nil
}

// GetLevel returns the current level name.
func GetLevel() string {
	switch l := globalLevel.Level(); {
	case l >= LevelOff:
		return "off"
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// Enabled reports whether any output is produced.
func Enabled() bool {
	return globalLevel.Level() < LevelOff
}

// ParseLevel converts a level name. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "off", "none":
		return LevelOff, nil
	default:
		return 0, fmt.Errorf("logger: unknown level %q", level)
	}
}

// SetDefault installs l as the slog default.
func SetDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// Notice writes msg to w when logging is off, so failures that would
// otherwise be logged still reach the user.
func Notice(ctx context.Context, l *slog.Logger, w io.Writer, msg string, args ...any) {
	if Enabled() {
		l.ErrorContext(ctx, msg, args...)
		return
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		attr := redactSensitive(slog.Any(fmt.Sprint(args[i]), args[i+1]))
		fmt.Fprintf(&b, " %s=%v", attr.Key, attr.Value)
	}
	fmt.Fprintln(w, b.String())
}
