package middleware

import (
	"context"

	"github.com/sessionedit/internal/session"
)

type contextKey string

const SessionKey contextKey = "session"

// WithSession кладёт сессию редактора в контекст.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

// GetSession возвращает сессию из контекста (устанавливается SessionRequired) или nil.
func GetSession(ctx context.Context) *session.Session {
	v, _ := ctx.Value(SessionKey).(*session.Session)
	return v
}
