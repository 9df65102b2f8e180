package storage

import (
	"context"

	"github.com/labwatch/internal/model"
)

// SessionStore is the read side of the login sessions the dashboard writes.
// Implementations: redis.Client, pgstore.Client, memory.Client (tests and -dev).
// Get returns (nil, nil) when the session does not exist or has expired.
type SessionStore interface {
	Get(ctx context.Context, sid string) (*model.Session, error)
	Close() error
}
