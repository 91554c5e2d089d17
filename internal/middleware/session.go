package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sessionedit/internal/logger"
	"github.com/sessionedit/internal/session"
)

// SessionLoader находит сессию по id (session.Manager).
type SessionLoader interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

// SessionID возвращает id сессии из X-Session-Id или query session_id (для /ws и вложений).
func SessionID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get("X-Session-Id"))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("session_id"))
	}
	return id
}

// SessionRequired загружает сессию редактора и кладёт её в контекст.
// Без id — 401, неизвестный id — 404.
func SessionRequired(loader SessionLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := SessionID(r)
			if id == "" {
				writeJSONError(w, http.StatusUnauthorized, "session required")
				return
			}
			s, err := loader.Get(r.Context(), id)
			if err != nil {
				if errors.Is(err, session.ErrSessionNotFound) {
					writeJSONError(w, http.StatusNotFound, "session not found")
					return
				}
				logger.Errorf("session middleware load session_id=%s: %v", logger.MaskID(id), err)
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}
