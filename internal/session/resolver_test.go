package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labwatch/internal/logger"
	"github.com/labwatch/internal/model"
	"github.com/labwatch/internal/session/sessiontest"
	"github.com/labwatch/internal/storage/memory"
)

func init() {
	logger.Init(logger.Config{Level: "error", Output: io.Discard})
}

const (
	cookie  = "connect.sid"
	secret  = "keyboard cat"
	rotated = "old secret"
)

// hangingStore ignores ctx and answers late.
type hangingStore struct{ *memory.Client }

func (hangingStore) Get(ctx context.Context, sid string) (*model.Session, error) {
	time.Sleep(time.Second)
	return nil, nil
}

type failingStore struct{ *memory.Client }

func (failingStore) Get(ctx context.Context, sid string) (*model.Session, error) {
	return nil, errors.New("connection refused")
}

func request(value string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	if value != "" {
		r.AddCookie(&http.Cookie{Name: cookie, Value: value})
	}
	return r
}

func seeded(t *testing.T) *memory.Client {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	one, seven := int64(1), int64(7)
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	sessions := map[string]*model.Session{
		"user":     {UserID: &one, Cookie: model.SessionCookie{Expires: &future}},
		"passport": {Passport: &model.SessionPassport{User: &seven}},
		"expired":  {UserID: &one, Cookie: model.SessionCookie{Expires: &past}},
		"guest":    {},
	}
	for sid, s := range sessions {
		if err := store.Set(ctx, sid, s, 0); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(seeded(t), cookie, []string{secret, rotated}, time.Second)

	tests := []struct {
		name    string
		cookie  string
		want    int64
		wantErr bool
	}{
		{name: "signed userId session", cookie: sessiontest.SignCookie("user", secret), want: 1},
		{name: "passport session", cookie: sessiontest.SignCookie("passport", secret), want: 7},
		{name: "rotated secret", cookie: sessiontest.SignCookie("user", rotated), want: 1},
		{name: "no cookie", wantErr: true},
		{name: "unsigned value", cookie: "user", wantErr: true},
		{name: "wrong secret", cookie: sessiontest.SignCookie("user", "nope"), wantErr: true},
		{name: "tampered sid", cookie: strings.Replace(sessiontest.SignCookie("user", secret), "user.", "passport.", 1), wantErr: true},
		{name: "missing signature", cookie: "s%3Auser.", wantErr: true},
		{name: "bad escape", cookie: "s%3Auser%zz", wantErr: true},
		{name: "unknown session", cookie: sessiontest.SignCookie("ghost", secret), wantErr: true},
		{name: "expired session", cookie: sessiontest.SignCookie("expired", secret), wantErr: true},
		{name: "session without user", cookie: sessiontest.SignCookie("guest", secret), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), request(tt.cookie))
			if tt.wantErr {
				if !errors.Is(err, ErrUnauthenticated) {
					t.Fatalf("err = %v, want ErrUnauthenticated", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("user = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolver_WithoutSecrets(t *testing.T) {
	r := NewResolver(seeded(t), cookie, nil, time.Second)

	for _, value := range []string{"user", "s%3Auser.whatever"} {
		got, err := r.Resolve(context.Background(), request(value))
		if err != nil || got != 1 {
			t.Errorf("Resolve(%q) = %d, %v; want 1", value, got, err)
		}
	}
}

func TestResolver_StoreTimeout(t *testing.T) {
	r := NewResolver(hangingStore{memory.New()}, cookie, []string{secret}, 20*time.Millisecond)

	start := time.Now()
	_, err := r.Resolve(context.Background(), request(sessiontest.SignCookie("user", secret)))
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Resolve took %v, timeout not applied", elapsed)
	}
}

func TestResolver_StoreError(t *testing.T) {
	r := NewResolver(failingStore{memory.New()}, cookie, []string{secret}, time.Second)
	_, err := r.Resolve(context.Background(), request(sessiontest.SignCookie("user", secret)))
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}
