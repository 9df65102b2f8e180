package middleware

import (
	"net/url"
	"strings"
)

// MaskSessionID reduces a session cookie to a short sid prefix for logs. The "s:"
// marker and the signature of signed cookies are dropped first.
func MaskSessionID(cookie string) string {
	v := strings.TrimSpace(cookie)
	if u, err := url.PathUnescape(v); err == nil {
		v = u
	}
	if sid, ok := strings.CutPrefix(v, "s:"); ok {
		if i := strings.LastIndexByte(sid, '.'); i >= 0 {
			sid = sid[:i]
		}
		v = sid
	}
	if len(v) <= 6 {
		return "****"
	}
	return v[:6] + "***"
}
