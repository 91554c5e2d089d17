package logger

import "strings"

// MaskID сокращает идентификатор сессии для логов: первая группа UUID и маска.
// Полный id в логах не светим: по нему можно подключиться к чужой сессии.
func MaskID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 8 {
		return "****"
	}
	return id[:8] + "***"
}
