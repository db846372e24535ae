package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// DefaultService tags records when Options.Service is empty.
const DefaultService = "numflow"

type Options struct {
	Level   string
	JSON    bool
	Service string    // value of the "service" attribute on every record
	Out     io.Writer // nil → os.Stderr
}

var def atomic.Pointer[slog.Logger]

func init() { Configure(Options{}) }

// Configure swaps the process-wide logger. Loggers already handed out by
// With keep the handler they were built with.
func Configure(opts Options) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	service := strings.TrimSpace(opts.Service)
	if service == "" {
		service = DefaultService
	}
	cfg := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(out, cfg)
	} else {
		h = slog.NewTextHandler(out, cfg)
	}
	l := slog.New(h).With("service", service)
	def.Store(l)
	slog.SetDefault(l)
}

func parseLevel(s string) slog.Level {
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

func L() *slog.Logger { return def.Load() }

// With returns the default logger scoped to a component.
func With(component string) *slog.Logger {
	return L().With("component", component)
}

// InitFromEnv configures from NUMFLOW_LOG_LEVEL, NUMFLOW_LOG_JSON and
// NUMFLOW_SERVICE_NAME, before the config file is read.
func InitFromEnv() {
	json, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("NUMFLOW_LOG_JSON")))
	Configure(Options{
		Level:   os.Getenv("NUMFLOW_LOG_LEVEL"),
		JSON:    json,
		Service: os.Getenv("NUMFLOW_SERVICE_NAME"),
	})
}
