package handler

import (
	"net/http"

	"github.com/sessionedit/internal/config"
)

// ConfigHandler отдаёт публичные параметры конфигурации (без сессии).
type ConfigHandler struct {
	cfg *config.Config
}

// NewConfigHandler создаёт обработчик конфигурации.
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// GetEditorConfig возвращает лимиты, которые фронтенд проверяет до отправки.
func (h *ConfigHandler) GetEditorConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"max_upload_size":   h.cfg.MaxUploadSize,
		"session_ttl_hours": int(h.cfg.Snapshot.TTL.Hours()),
		"directions":        []string{"first", "backward", "forward", "last"},
	})
}
