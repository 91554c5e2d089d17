package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sessionedit/internal/middleware"
)

// Routes — обработчики, которые Mount вешает на роутер.
type Routes struct {
	Editor   *EditorHandler
	WS       *WSHandler
	Config   *ConfigHandler
	Sessions middleware.SessionLoader
	// Limiter ограничивает /api/*; nil — без ограничения.
	Limiter *middleware.RateLimiter
}

// Mount регистрирует API редактора, прокси вложений и WebSocket.
// Всё, кроме создания сессии и конфига, требует X-Session-Id (или session_id в query).
func Mount(r chi.Router, rt Routes) {
	limit := func(next http.Handler) http.Handler { return next }
	if rt.Limiter != nil {
		limit = rt.Limiter.Middleware
	}

	r.With(limit).Get("/api/config", rt.Config.GetEditorConfig)
	r.With(limit).Post("/api/sessions", rt.Editor.CreateSession)

	r.Group(func(r chi.Router) {
		r.Use(limit)
		r.Use(middleware.SessionRequired(rt.Sessions))
		r.Delete("/api/sessions", rt.Editor.DeleteSession)
		r.Get("/api/state", rt.Editor.State)
		r.Post("/api/upload", rt.Editor.Upload)
		r.Post("/api/navigate", rt.Editor.Navigate)
		r.Post("/api/reload", rt.Editor.Reload)
		r.Get("/api/recents", rt.Editor.Recents)
		r.Get("/api/recent-saves", rt.Editor.RecentSaves)
		r.Post("/api/load-recent", rt.Editor.LoadRecent)
		r.Post("/api/resume", rt.Editor.Resume)
		r.Post("/api/mode/mark", rt.Editor.ToggleMarkMode)
		r.Post("/api/mode/divider", rt.Editor.ToggleDividerMode)
		r.Post("/api/messages/{key}/click", rt.Editor.Click)
		r.Post("/api/messages/{key}/secondary", rt.Editor.Secondary)
		r.Post("/api/view", rt.Editor.SetView)
		r.Post("/api/view/reload-images", rt.Editor.ReloadImages)
		r.Post("/api/save", rt.Editor.Save)
		r.Post("/api/export", rt.Editor.Export)
		r.Get("/api/history", rt.Editor.History)
	})

	// Вложения и /ws открываются браузером напрямую, id сессии — в query; лимит не нужен.
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionRequired(rt.Sessions))
		r.Get("/attachment/{id}", rt.Editor.Attachment)
		if rt.WS != nil {
			r.Get("/ws", rt.WS.ServeWS)
		}
	})
}
