package memory

import (
	"context"
	"testing"
	"time"

	"github.com/labwatch/internal/model"
)

func TestClient(t *testing.T) {
	ctx := context.Background()
	c := New()
	uid := int64(3)

	if s, err := c.Get(ctx, "missing"); s != nil || err != nil {
		t.Fatalf("Get(missing) = %+v, %v; want nil, nil", s, err)
	}

	if err := c.Set(ctx, "forever", &model.Session{UserID: &uid}, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "short", &model.Session{UserID: &uid}, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	if s, _ := c.Get(ctx, "forever"); s == nil {
		t.Error("session without ttl disappeared")
	}
	if s, _ := c.Get(ctx, "short"); s != nil {
		t.Error("expired session still returned")
	}

	s, _ := c.Get(ctx, "forever")
	s.UserID = nil
	if again, _ := c.Get(ctx, "forever"); again.UserID == nil {
		t.Error("Get returned the stored session instead of a copy")
	}
}
