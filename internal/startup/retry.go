package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/sessionedit/internal/logger"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// retry вызывает attempt, пока тот не вернёт nil, ctx не отменён или не прошло maxWait.
// Пауза между попытками удваивается от 2s до 30s.
func retry(ctx context.Context, maxWait time.Duration, what, logPrefix string, attempt func(context.Context) error) error {
	deadline := time.Now().Add(maxWait)
	backoff := initialBackoff
	for {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s (gave up after %v): %w", what, maxWait, err)
		}
		logger.Errorf("%s%s failed, retry in %v: %v", logPrefix, what, backoff, err)
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
