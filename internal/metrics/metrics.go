// Package metrics собирает метрики Prometheus редактора: запросы к серверу чанков,
// состояние circuit breaker, сессии, WebSocket и HTTP API.
// Все методы Collector безопасны для nil-получателя (в тестах метрики не нужны).
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sessionedit"

// Collector держит все метрики сервиса в собственном реестре.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	backendDuration *prometheus.HistogramVec
	backendFailures *prometheus.CounterVec
	breakerOpen     prometheus.Gauge

	sessions     prometheus.Gauge
	wsClients    prometheus.Gauge
	superseded   prometheus.Counter
	savedMarks   prometheus.Gauge
	savedGroups  prometheus.Gauge
	pendingSpans prometheus.Gauge
}

// New создаёт коллектор и регистрирует метрики вместе со стандартными Go/process.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by the editor API.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Editor API request duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Chunk server round trip duration by operation.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		backendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "failures_total",
			Help:      "Failed chunk server calls by operation.",
		}, []string{"op"}),
		breakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "breaker_open",
			Help:      "1 while the chunk server circuit breaker is open.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Editing sessions held in memory.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected WebSocket clients.",
		}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "superseded_responses_total",
			Help:      "Chunk responses discarded because a newer request was issued.",
		}),
		savedMarks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_save_marks",
			Help:      "Marks sent by the most recent save or export.",
		}),
		savedGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_save_group_assignments",
			Help:      "Group assignments sent by the most recent save or export.",
		}),
		pendingSpans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_save_unresolved_spans",
			Help:      "Divider spans left out of the most recent save because their chunk was never loaded.",
		}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.httpRequests, c.httpDuration,
		c.backendDuration, c.backendFailures, c.breakerOpen,
		c.sessions, c.wsClients, c.superseded,
		c.savedMarks, c.savedGroups, c.pendingSpans,
	)
	return c
}

// Handler отдаёт /metrics из собственного реестра.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry нужен тестам для чтения значений.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveBackend учитывает один вызов сервера чанков.
func (c *Collector) ObserveBackend(op string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.backendDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		c.backendFailures.WithLabelValues(op).Inc()
	}
}

func (c *Collector) SetBreakerOpen(open bool) {
	if c == nil {
		return
	}
	if open {
		c.breakerOpen.Set(1)
		return
	}
	c.breakerOpen.Set(0)
}

func (c *Collector) SetSessions(n int) {
	if c == nil {
		return
	}
	c.sessions.Set(float64(n))
}

func (c *Collector) AddWSClients(delta int) {
	if c == nil {
		return
	}
	c.wsClients.Add(float64(delta))
}

func (c *Collector) IncSuperseded() {
	if c == nil {
		return
	}
	c.superseded.Inc()
}

// ObserveSave запоминает размер последнего сохранения или экспорта.
func (c *Collector) ObserveSave(marks, assignments, unresolved int) {
	if c == nil {
		return
	}
	c.savedMarks.Set(float64(marks))
	c.savedGroups.Set(float64(assignments))
	c.pendingSpans.Set(float64(unresolved))
}
