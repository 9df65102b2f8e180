package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/labwatch/internal/model"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix matches connect-redis, so sessions written by the dashboard are readable here.
const DefaultPrefix = "sess:"

type Client struct {
	cli    *redis.Client
	prefix string
}

func New(ctx context.Context, url, prefix string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewFromClient(cli, prefix), nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(cli *redis.Client, prefix string) *Client {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Client{cli: cli, prefix: prefix}
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) Get(ctx context.Context, sid string) (*model.Session, error) {
	raw, err := c.cli.Get(ctx, c.prefix+sid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	s := &model.Session{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("redis decode session: %w", err)
	}
	return s, nil
}
