// Package startup connects the server to its backing services at boot.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/labwatch/internal/logger"
)

var (
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// retry calls fn until it succeeds, maxWait passes or ctx is done. Backoff doubles up to maxBackoff.
func retry(ctx context.Context, what string, maxWait time.Duration, fn func(ctx context.Context) error) error {
	deadline := time.Now().Add(maxWait)
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Infof("%s connected after %d attempts", what, attempt)
			}
			return nil
		}
		if time.Now().Add(backoff).After(deadline) {
			return fmt.Errorf("%s (gave up after %v): %w", what, maxWait, err)
		}
		logger.Warnf("%s failed, retry in %v: %v", what, backoff, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
