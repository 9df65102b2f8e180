// Package logger provides service-prefixed logging with non-blocking writes so that
// log output never stalls a socket pump or the hub loop. Durations of slow calls can be
// logged with DeferLogDuration.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

const (
	asyncBufferSize = 8192
	slowCall        = 100 * time.Millisecond
)

var (
	mu     sync.Mutex
	base   zerolog.Logger
	prefix string
	// base plus the service field, rebuilt by Init and SetPrefix
	current atomic.Pointer[zerolog.Logger]
)

// Config selects level and output format. Output defaults to os.Stderr.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// Init (re)configures the global logger. Writes go through a diode buffer: when it is
// full, messages are dropped instead of blocking the caller.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if out != io.Discard {
		out = diode.NewWriter(out, asyncBufferSize, 10*time.Millisecond, func(missed int) {
			fmt.Fprintf(os.Stderr, "logger: dropped %d messages\n", missed)
		})
	}
	l := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()

	mu.Lock()
	base = l
	rebuild()
	mu.Unlock()
}

// rebuild must be called with mu held.
func rebuild() {
	l := base
	if prefix != "" {
		l = l.With().Str("service", prefix).Logger()
	}
	current.Store(&l)
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func get() *zerolog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	Init(Config{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})
	return current.Load()
}

// SetPrefix tags every following entry with service=p (e.g. "chat").
func SetPrefix(p string) {
	mu.Lock()
	prefix = p
	rebuild()
	mu.Unlock()
}

// Logger returns the configured zerolog logger for callers that want structured fields.
func Logger() *zerolog.Logger {
	return get()
}

func Info(v ...any) {
	get().Info().Msg(fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	get().Info().Msgf(format, v...)
}

func Debugf(format string, v ...any) {
	get().Debug().Msgf(format, v...)
}

func Warnf(format string, v ...any) {
	get().Warn().Msgf(format, v...)
}

func Error(v ...any) {
	get().Error().Msg(fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	get().Error().Msgf(format, v...)
}

// LogDuration logs fn and its elapsed time. At info level only calls slower than 100ms
// are logged; at debug level every call is.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	l := get()
	if l.GetLevel() <= zerolog.DebugLevel || elapsed >= slowCall {
		l.Info().Str("fn", fn).Int64("duration_ms", elapsed.Milliseconds()).Msg("call duration")
	}
}

// DeferLogDuration is meant for defer: defer logger.DeferLogDuration("chat.GetByID", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
