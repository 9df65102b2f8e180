package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/labwatch/internal/logger"
)

// InternalOnly guards operator endpoints such as /metrics. A request passes when it
// comes from a loopback or private address, or carries X-Internal-Secret equal to
// secret. The client address is r.RemoteAddr, so chi's RealIP must run first when the
// server sits behind a proxy.
func InternalOnly(secret string) func(http.Handler) http.Handler {
	key := []byte(strings.TrimSpace(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(key) > 0 && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Internal-Secret")), key) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			if addr, ok := clientAddr(r.RemoteAddr); ok && (addr.IsLoopback() || addr.IsPrivate()) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Debugf("internal endpoint %s refused for %s", r.URL.Path, r.RemoteAddr)
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		})
	}
}

func clientAddr(remote string) (netip.Addr, bool) {
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
