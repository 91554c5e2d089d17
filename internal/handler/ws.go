package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/sessionedit/internal/logger"
	"github.com/sessionedit/internal/middleware"
	"github.com/sessionedit/internal/ws"
)

type WSHandler struct {
	hub            *ws.Hub
	allowedOrigins string
}

// NewWSHandler создаёт обработчик WebSocket. allowedOrigins — как в CORS (через запятую или "*").
func NewWSHandler(hub *ws.Hub, allowedOrigins string) *WSHandler {
	return &WSHandler{hub: hub, allowedOrigins: strings.TrimSpace(allowedOrigins)}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS подписывает вкладку на события сессии (session_id в query).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	s := middleware.GetSession(r.Context())
	if s == nil {
		writeError(w, http.StatusUnauthorized, "session required")
		return
	}
	if !h.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, s.ID)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}

// StateFunc отдаёт хабу текущее состояние сессии для "sync" и новых вкладок.
func StateFunc(loader middleware.SessionLoader) ws.StateFunc {
	return func(ctx context.Context, sessionID string) (any, error) {
		s, err := loader.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return s.ViewState(), nil
	}
}
