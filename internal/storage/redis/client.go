package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotPrefix = "snapshot:"

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
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
	return &Client{cli: cli}, nil
}

// NewFromClient оборачивает уже подключённый клиент (startup.ConnectRedisWithRetry).
func NewFromClient(cli *redis.Client) *Client {
	return &Client{cli: cli}
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// SaveSnapshot пишет снимок по ключу snapshot:{sessionID}; каждая запись продлевает TTL.
func (c *Client) SaveSnapshot(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	return c.cli.Set(ctx, snapshotPrefix+sessionID, data, ttl).Err()
}

// LoadSnapshot возвращает снимок; истёкший или отсутствующий ключ — nil без ошибки.
func (c *Client) LoadSnapshot(ctx context.Context, sessionID string) ([]byte, error) {
	val, err := c.cli.Get(ctx, snapshotPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (c *Client) DeleteSnapshot(ctx context.Context, sessionID string) error {
	return c.cli.Del(ctx, snapshotPrefix+sessionID).Err()
}
