package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/goccy/go-json"
	"github.com/labwatch/internal/logger"
	"github.com/labwatch/internal/metrics"
)

var internalErrorBody, _ = json.Marshal(map[string]string{"error": "internal server error"})

// RecoverJSON turns a handler panic into a logged stack and a JSON 500. Nothing is sent
// when the handler already started the response or hijacked the connection.
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := wrapWriter(w)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			metrics.HTTPPanics.Inc()
			logger.Logger().Error().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("handler panic")
			if sw.wrote {
				return
			}
			sw.Header().Set("Content-Type", "application/json; charset=utf-8")
			sw.WriteHeader(http.StatusInternalServerError)
			_, _ = sw.ResponseWriter.Write(append(internalErrorBody, '\n'))
		}()
		next.ServeHTTP(sw, r)
	})
}
