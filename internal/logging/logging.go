package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the process-wide logger.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Defaults to info.
	Level string

	// Format is "json" or "console". Defaults to json.
	Format string

	// Output overrides the destination. Defaults to stderr.
	Output io.Writer
}

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Init configures the process-wide logger. Safe to call more than once;
// tests call it with io.Discard.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	mu.Lock()
	logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	mu.Unlock()
}

// Logger returns the configured logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug starts a debug-level event.
func Debug() *zerolog.Event { l := Logger(); return l.Debug() }

// Info starts an info-level event.
func Info() *zerolog.Event { l := Logger(); return l.Info() }

// Warn starts a warn-level event.
func Warn() *zerolog.Event { l := Logger(); return l.Warn() }

// Error starts an error-level event.
func Error() *zerolog.Event { l := Logger(); return l.Error() }

// Fatal starts a fatal-level event. The process exits when Msg is called.
func Fatal() *zerolog.Event { l := Logger(); return l.Fatal() }
