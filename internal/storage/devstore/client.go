package devstore

import (
	"context"
	"errors"
	"time"

	"github.com/sessionedit/internal/repository"
)

// Client реализует SnapshotStore для режима -dev: снимки в БД (embedded Postgres),
// так что аннотации переживают перезапуск редактора без Redis.
type Client struct {
	repo *repository.SnapshotRepository
	now  func() time.Time
}

func New(repo *repository.SnapshotRepository) *Client {
	return &Client{repo: repo, now: time.Now}
}

func (c *Client) Close() error { return nil }

func (c *Client) SaveSnapshot(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	return c.repo.Upsert(ctx, sessionID, data, c.now().Add(ttl))
}

func (c *Client) LoadSnapshot(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := c.repo.Get(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (c *Client) DeleteSnapshot(ctx context.Context, sessionID string) error {
	return c.repo.Delete(ctx, sessionID)
}

// Sweep удаляет истёкшие снимки.
func (c *Client) Sweep(ctx context.Context) (int64, error) {
	return c.repo.DeleteExpired(ctx)
}
