// Package reporting sets up structured logging and forwards errors that
// need an administrator's attention to Rollbar.
package reporting

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rollbar/rollbar-go"
)

var enabled bool

// Options configures Setup.
type Options struct {
	Level        string // debug, info, warn, error
	Format       string // json or text
	Env          string
	RollbarToken string
	Output       io.Writer
}

// Setup installs the default slog logger and configures Rollbar. Rollbar
// stays disabled without a token.
func Setup(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}
	logger := slog.New(handler).With("env", opts.Env)
	slog.SetDefault(logger)

	rollbar.SetToken(opts.RollbarToken)
	rollbar.SetEnvironment(opts.Env)
	if host, err := os.Hostname(); err == nil {
		rollbar.SetServerHost(host)
	}
	enabled = opts.RollbarToken != ""
	rollbar.SetEnabled(enabled)
	return logger
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Error logs err and sends it to Rollbar with the given key/value pairs as
// extras.
func Error(logger *slog.Logger, msg string, err error, kv ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error(msg, append([]any{"error", err}, kv...)...)
	if enabled {
		rollbar.Error(err, extras(msg, kv))
	}
}

func extras(msg string, kv []any) map[string]interface{} {
	out := map[string]interface{}{"message": msg}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			out[k] = kv[i+1]
		}
	}
	return out
}

// Wait blocks until queued Rollbar items are sent.
func Wait() {
	if enabled {
		rollbar.Wait()
	}
}
