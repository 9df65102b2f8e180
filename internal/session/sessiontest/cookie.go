// Package sessiontest builds session cookies the way the dashboard signs them.
package sessiontest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
)

// SignCookie returns the connect.sid value for sid signed with secret.
func SignCookie(sid, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sid))
	sig := base64.RawStdEncoding.EncodeToString(mac.Sum(nil))
	return url.PathEscape("s:" + sid + "." + sig)
}
