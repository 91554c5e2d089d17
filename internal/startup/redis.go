package startup

import (
	"context"
	"time"

	redisstorage "github.com/sessionedit/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis-хранилищу снимков с повторами.
func ConnectRedisWithRetry(ctx context.Context, redisURL string, maxWait time.Duration, logPrefix string) (*redisstorage.Client, error) {
	var client *redisstorage.Client
	err := retry(ctx, maxWait, "redis connect", logPrefix, func(ctx context.Context) error {
		connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c, err := redisstorage.New(connCtx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	return client, err
}
