package memory

import (
	"context"
	"sync"
	"time"
)

type item struct {
	val []byte
	exp time.Time
}

// Client хранит снимки в памяти процесса; переживают только перезапуск HTTP-слоя, не процесса.
type Client struct {
	mu        sync.RWMutex
	snapshots map[string]item
	now       func() time.Time
}

func New() *Client {
	return &Client{
		snapshots: make(map[string]item),
		now:       time.Now,
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SaveSnapshot(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[sessionID] = item{val: append([]byte(nil), data...), exp: c.now().Add(ttl)}
	return nil
}

func (c *Client) LoadSnapshot(ctx context.Context, sessionID string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.snapshots[sessionID]
	if !ok || c.now().After(v.exp) {
		return nil, nil
	}
	return append([]byte(nil), v.val...), nil
}

func (c *Client) DeleteSnapshot(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, sessionID)
	return nil
}

// Sweep удаляет просроченные снимки и возвращает их число.
func (c *Client) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for id, v := range c.snapshots {
		if now.After(v.exp) {
			delete(c.snapshots, id)
			n++
		}
	}
	return n
}
