package pgstore

import (
	"context"
	"errors"

	"github.com/labwatch/internal/model"
	"github.com/labwatch/internal/repository"
)

// Client implements storage.SessionStore on top of the "session" table, for
// deployments where the dashboard keeps sessions in Postgres instead of Redis.
type Client struct {
	repo *repository.SessionRepository
}

func New(repo *repository.SessionRepository) *Client {
	return &Client{repo: repo}
}

func (c *Client) Close() error { return nil }

func (c *Client) Get(ctx context.Context, sid string) (*model.Session, error) {
	s, err := c.repo.GetByID(ctx, sid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return s, err
}
