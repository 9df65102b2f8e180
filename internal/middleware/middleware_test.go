package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/labwatch/internal/logger"
)

func init() {
	logger.Init(logger.Config{Level: "error", Output: io.Discard})
}

type stubResolver struct {
	userID int64
	err    error
}

func (s stubResolver) Resolve(ctx context.Context, r *http.Request) (int64, error) {
	return s.userID, s.err
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]int64{"userId": GetUserID(r.Context())})
}

func TestSessionAuth(t *testing.T) {
	tests := []struct {
		name     string
		resolver Resolver
		want     int
		body     string
	}{
		{"authenticated", stubResolver{userID: 42}, http.StatusOK, `{"userId":42}`},
		{"rejected", stubResolver{err: errors.New("unauthenticated: no session cookie")}, http.StatusUnauthorized, `{"error":"unauthorized"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := SessionAuth(tt.resolver, "connect.sid")(http.HandlerFunc(echoUser))
			req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
			req.AddCookie(&http.Cookie{Name: "connect.sid", Value: "s%3Asecret-session-id.sig"})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.body {
				t.Errorf("body = %s, want %s", got, tt.body)
			}
		})
	}
}

func TestGetUserID_Missing(t *testing.T) {
	if got := GetUserID(context.Background()); got != 0 {
		t.Errorf("GetUserID = %d, want 0", got)
	}
	if got := GetUserID(WithUserID(context.Background(), 5)); got != 5 {
		t.Errorf("GetUserID = %d, want 5", got)
	}
}

func TestMaskSessionID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "****"},
		{"abc", "****"},
		{"abcdef", "****"},
		{"abcdefg", "abcdef***"},
		{"  s%3Along-session-id.c2lnbmF0dXJl  ", "long-s***"},
		{"s:short.c2lnbmF0dXJl", "****"},
		{"s%3Azz", "****"},
	}
	for _, tt := range tests {
		if got := MaskSessionID(tt.in); got != tt.want {
			t.Errorf("MaskSessionID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInternalOnly(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	// as in the router: RealIP rewrites RemoteAddr before the guard runs
	h := chimw.RealIP(InternalOnly("s3cret")(ok))

	tests := []struct {
		name   string
		remote string
		header map[string]string
		want   int
	}{
		{"loopback", "127.0.0.1:5000", nil, http.StatusNoContent},
		{"private lan", "192.168.1.20:5000", nil, http.StatusNoContent},
		{"public", "203.0.113.9:5000", nil, http.StatusForbidden},
		{"public with secret", "203.0.113.9:5000", map[string]string{"X-Internal-Secret": "s3cret"}, http.StatusNoContent},
		{"public with wrong secret", "203.0.113.9:5000", map[string]string{"X-Internal-Secret": "nope"}, http.StatusForbidden},
		{"forwarded public", "10.0.0.2:5000", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, http.StatusForbidden},
		{"real ip private", "203.0.113.9:5000", map[string]string{"X-Real-Ip": "10.1.2.3"}, http.StatusNoContent},
		{"ipv6 loopback", "[::1]:5000", nil, http.StatusNoContent},
		{"ipv4-mapped private", "[::ffff:10.0.0.5]:5000", nil, http.StatusNoContent},
		{"garbage address", "not-an-ip", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRateLimitByIP(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RateLimitByIP(2)(ok)

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	for i := 0; i < 2; i++ {
		if code := do("198.51.100.1:1000"); code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, code)
		}
	}
	if code := do("198.51.100.1:1001"); code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", code)
	}
	if code := do("198.51.100.2:1000"); code != http.StatusOK {
		t.Errorf("other ip status = %d, want 200", code)
	}
}

func TestRateLimitByIP_Disabled(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RateLimitByIP(0)(ok)
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
}

func TestRecoverJSON(t *testing.T) {
	t.Run("panic before write", func(t *testing.T) {
		h := RecoverJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") }))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body["error"] != "internal server error" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("panic after write", func(t *testing.T) {
		h := RecoverJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			panic("late")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusAccepted {
			t.Errorf("status = %d, want 202", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("body = %q, want empty", rec.Body.String())
		}
	})
}
