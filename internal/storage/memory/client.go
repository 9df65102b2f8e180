package memory

import (
	"context"
	"sync"
	"time"

	"github.com/labwatch/internal/model"
)

type item struct {
	s   *model.Session
	exp time.Time
}

// Client keeps sessions in process memory. A zero ttl never expires.
type Client struct {
	mu       sync.RWMutex
	sessions map[string]item
}

func New() *Client {
	return &Client{sessions: make(map[string]item)}
}

func (c *Client) Close() error { return nil }

func (c *Client) Get(ctx context.Context, sid string) (*model.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.sessions[sid]
	if !ok || (!v.exp.IsZero() && time.Now().After(v.exp)) {
		return nil, nil
	}
	cp := *v.s
	return &cp, nil
}

// Set is the only way sessions enter the store; there is no dashboard writing
// to process memory, so tests and embedders fill it directly.
func (c *Client) Set(ctx context.Context, sid string, s *model.Session, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.sessions[sid] = item{s: s, exp: exp}
	return nil
}
