package startup

import (
	"context"
	"time"

	"github.com/labwatch/internal/logger"
	redisstorage "github.com/labwatch/internal/storage/redis"
)

// ConnectRedis returns the redis session store once the server answers PING.
func ConnectRedis(ctx context.Context, redisURL, prefix string, maxWait time.Duration) (*redisstorage.Client, error) {
	var client *redisstorage.Client
	err := retry(ctx, "redis", maxWait, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c, err := redisstorage.New(pingCtx, redisURL, prefix)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("redis session store ready (prefix %q)", prefix)
	return client, nil
}
