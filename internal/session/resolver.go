// Package session identifies the user behind a WebSocket handshake from the
// dashboard's signed session cookie.
package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labwatch/internal/metrics"
	"github.com/labwatch/internal/model"
	"github.com/labwatch/internal/storage"
)

// ErrUnauthenticated is returned (wrapped with the reason) for every failed resolution.
var ErrUnauthenticated = errors.New("unauthenticated")

const signedPrefix = "s:"

type Resolver struct {
	store      storage.SessionStore
	cookieName string
	secrets    [][]byte
	timeout    time.Duration
	now        func() time.Time
}

// NewResolver builds a resolver. The first secret signs, all of them verify, so secrets
// can be rotated. With no secrets the cookie is accepted unsigned.
func NewResolver(store storage.SessionStore, cookieName string, secrets []string, timeout time.Duration) *Resolver {
	if cookieName == "" {
		cookieName = "connect.sid"
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	keys := make([][]byte, 0, len(secrets))
	for _, s := range secrets {
		if s != "" {
			keys = append(keys, []byte(s))
		}
	}
	return &Resolver{store: store, cookieName: cookieName, secrets: keys, timeout: timeout, now: time.Now}
}

// Resolve returns the authenticated user id for the handshake request.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (int64, error) {
	sid, err := r.SessionID(req)
	if err != nil {
		metrics.SessionLookups.WithLabelValues("unauthenticated").Inc()
		return 0, err
	}

	start := time.Now()
	s, err := r.lookup(ctx, sid)
	metrics.SessionLookupDuration.Observe(time.Since(start).Seconds())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		metrics.SessionLookups.WithLabelValues("timeout").Inc()
		return 0, fmt.Errorf("%w: session lookup timed out after %v", ErrUnauthenticated, r.timeout)
	case err != nil:
		metrics.SessionLookups.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("%w: session lookup: %w", ErrUnauthenticated, err)
	case s == nil:
		metrics.SessionLookups.WithLabelValues("unauthenticated").Inc()
		return 0, fmt.Errorf("%w: session not found", ErrUnauthenticated)
	case s.Expired(r.now()):
		metrics.SessionLookups.WithLabelValues("unauthenticated").Inc()
		return 0, fmt.Errorf("%w: session expired", ErrUnauthenticated)
	}

	userID, ok := s.AuthenticatedUserID()
	if !ok {
		metrics.SessionLookups.WithLabelValues("unauthenticated").Inc()
		return 0, fmt.Errorf("%w: session has no user", ErrUnauthenticated)
	}
	metrics.SessionLookups.WithLabelValues("ok").Inc()
	return userID, nil
}

// SessionID extracts and verifies the session id carried by the request cookie.
func (r *Resolver) SessionID(req *http.Request) (string, error) {
	c, err := req.Cookie(r.cookieName)
	if err != nil || c.Value == "" {
		return "", fmt.Errorf("%w: no session cookie", ErrUnauthenticated)
	}
	val, err := url.PathUnescape(c.Value)
	if err != nil {
		return "", fmt.Errorf("%w: malformed session cookie", ErrUnauthenticated)
	}

	if len(r.secrets) == 0 {
		val = strings.TrimPrefix(val, signedPrefix)
		if i := strings.LastIndexByte(val, '.'); i > 0 {
			val = val[:i]
		}
		if val == "" {
			return "", fmt.Errorf("%w: malformed session cookie", ErrUnauthenticated)
		}
		return val, nil
	}

	if !strings.HasPrefix(val, signedPrefix) {
		return "", fmt.Errorf("%w: unsigned session cookie", ErrUnauthenticated)
	}
	sid, ok := r.unsign(strings.TrimPrefix(val, signedPrefix))
	if !ok {
		return "", fmt.Errorf("%w: bad session cookie signature", ErrUnauthenticated)
	}
	return sid, nil
}

func (r *Resolver) unsign(signed string) (string, bool) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 || i == len(signed)-1 {
		return "", false
	}
	sid, sig := signed[:i], signed[i+1:]
	for _, key := range r.secrets {
		if hmac.Equal([]byte(sig), []byte(signature(sid, key))) {
			return sid, true
		}
	}
	return "", false
}

// lookup queries the store but gives up once the timeout passes, even when the store
// itself ignores ctx.
func (r *Resolver) lookup(ctx context.Context, sid string) (*model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		s   *model.Session
		err error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := r.store.Get(ctx, sid)
		ch <- result{s: s, err: err}
	}()

	select {
	case res := <-ch:
		return res.s, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func signature(sid string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(sid))
	return base64.RawStdEncoding.EncodeToString(mac.Sum(nil))
}
