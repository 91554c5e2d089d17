package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sessionedit/internal/logger"
	"github.com/sessionedit/internal/metrics"
)

// RequestLog логирует каждый HTTP-запрос (method, path, время выполнения) и пишет метрики.
// Метка route — шаблон chi ("/api/messages/{key}/click"), а не сырой путь.
func RequestLog(m *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			defer logger.DeferLogDuration("http "+r.Method+" "+r.URL.Path, start)()
			wrap, ok := w.(*responseWriter)
			if !ok {
				wrap = &responseWriter{ResponseWriter: w, status: http.StatusOK}
			}
			next.ServeHTTP(wrap, r)
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.ObserveHTTP(r.Method, route, wrap.status, time.Since(start))
		})
	}
}
