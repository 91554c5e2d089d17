package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sessionedit/internal/logger"
	"github.com/sessionedit/internal/model"
)

// ErrNotFound — запись не найдена.
var ErrNotFound = errors.New("not found")

// SaveLogRepository — журнал сохранений и экспортов.
type SaveLogRepository struct {
	pool *pgxpool.Pool
}

func NewSaveLogRepository(pool *pgxpool.Pool) *SaveLogRepository {
	return &SaveLogRepository{pool: pool}
}

// Record добавляет запись и заполняет ID и CreatedAt.
func (r *SaveLogRepository) Record(ctx context.Context, e *model.SaveLogEntry) error {
	defer logger.DeferLogDuration("saveLog.Record", time.Now())()
	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO save_log (session_id, kind, folder, marks, assignments, unresolved, payload, message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		 RETURNING id, created_at`,
		e.SessionID, string(e.Kind), e.Folder, e.Marks, e.Assignments, e.Unresolved, payload, e.Message,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("saveLogRepo.Record: %w", err)
	}
	return nil
}

// ListBySession возвращает последние записи сессии, новые первыми. Тело payload не читается.
func (r *SaveLogRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]model.SaveLogEntry, error) {
	defer logger.DeferLogDuration("saveLog.ListBySession", time.Now())()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, kind, folder, marks, assignments, unresolved, message, created_at
		 FROM save_log WHERE session_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("saveLogRepo.ListBySession: %w", err)
	}
	defer rows.Close()
	list := []model.SaveLogEntry{}
	for rows.Next() {
		var e model.SaveLogEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.Folder, &e.Marks, &e.Assignments, &e.Unresolved, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("saveLogRepo.ListBySession scan: %w", err)
		}
		e.Kind = model.SaveKind(kind)
		list = append(list, e)
	}
	return list, rows.Err()
}
