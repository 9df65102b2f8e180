package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labwatch/internal/logger"
	"github.com/labwatch/internal/metrics"
	"github.com/rs/zerolog"
)

const slowRequest = 500 * time.Millisecond

// RequestLog counts every request and logs it with status and duration. Health checks and
// scrapes log at debug, errors and slow requests at warn.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := wrapWriter(w)
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()

		l := logger.Logger()
		var ev *zerolog.Event
		switch {
		case sw.status >= http.StatusInternalServerError || elapsed >= slowRequest:
			ev = l.Warn()
		case r.URL.Path == "/health" || r.URL.Path == "/metrics":
			ev = l.Debug()
		default:
			ev = l.Info()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Str("remote", r.RemoteAddr).
			Dur("duration", elapsed).
			Bool("upgraded", sw.hijacked).
			Msg("http request")
	})
}
