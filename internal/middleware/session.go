package middleware

import (
	"context"
	"net/http"

	"github.com/labwatch/internal/logger"
)

// Resolver identifies the user behind a request (see session.Resolver).
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (int64, error)
}

// SessionAuth rejects requests without a valid session with 401 before the wrapped
// handler (the WebSocket upgrade) runs.
func SessionAuth(resolver Resolver, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolver.Resolve(r.Context(), r)
			if err != nil {
				cookie := ""
				if c, cerr := r.Cookie(cookieName); cerr == nil {
					cookie = c.Value
				}
				logger.Infof("session auth rejected cookie=%s remote=%s: %v", MaskSessionID(cookie), r.RemoteAddr, err)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
