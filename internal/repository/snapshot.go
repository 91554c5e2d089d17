package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sessionedit/internal/logger"
)

// SnapshotRepository хранит снимки сессий в БД (режим -dev без Redis).
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

func (r *SnapshotRepository) Upsert(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	defer logger.DeferLogDuration("snapshot.Upsert", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_snapshots (session_id, data, expires_at, updated_at)
		 VALUES ($1, $2::jsonb, $3, now())
		 ON CONFLICT (session_id) DO UPDATE SET
		   data = EXCLUDED.data,
		   expires_at = EXCLUDED.expires_at,
		   updated_at = now()`,
		sessionID, string(data), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("snapshotRepo.Upsert: %w", err)
	}
	return nil
}

// Get возвращает снимок, если он не истёк; иначе ErrNotFound.
func (r *SnapshotRepository) Get(ctx context.Context, sessionID string) ([]byte, error) {
	defer logger.DeferLogDuration("snapshot.Get", time.Now())()
	var data string
	err := r.pool.QueryRow(ctx,
		`SELECT data::text FROM session_snapshots WHERE session_id = $1 AND expires_at > now()`, sessionID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("snapshotRepo.Get: %w", err)
	}
	return []byte(data), nil
}

func (r *SnapshotRepository) Delete(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM session_snapshots WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("snapshotRepo.Delete: %w", err)
	}
	return nil
}

// DeleteExpired удаляет истёкшие снимки и возвращает их число.
func (r *SnapshotRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM session_snapshots WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("snapshotRepo.DeleteExpired: %w", err)
	}
	return tag.RowsAffected(), nil
}
