package storage

import (
	"context"
	"time"
)

// SnapshotStore — хранилище снимков сессий редактора (аннотации, позиция, режимы).
// Снимок — непрозрачный JSON, ключ — id сессии. Отсутствующий снимок: nil, nil.
// Реализации: redis.Client, memory.Client, devstore.Client (-dev, снимки в БД).
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error
	LoadSnapshot(ctx context.Context, sessionID string) ([]byte, error)
	DeleteSnapshot(ctx context.Context, sessionID string) error
	Close() error
}
