package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Backend(t *testing.T) {
	c := New()
	c.ObserveBackend("navigate", 20*time.Millisecond, nil)
	c.ObserveBackend("navigate", 5*time.Millisecond, errors.New("boom"))
	c.ObserveBackend("save", time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.backendFailures.WithLabelValues("navigate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.backendFailures.WithLabelValues("save")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.backendDuration))
}

func TestCollector_Gauges(t *testing.T) {
	c := New()
	c.SetBreakerOpen(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.breakerOpen))
	c.SetBreakerOpen(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.breakerOpen))

	c.AddWSClients(2)
	c.AddWSClients(-1)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.wsClients))

	c.ObserveSave(4, 7, 1)
	assert.Equal(t, 4.0, testutil.ToFloat64(c.savedMarks))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.savedGroups))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pendingSpans))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveBackend("navigate", time.Second, nil)
		c.ObserveHTTP("GET", "/api/state", 200, time.Second)
		c.SetSessions(3)
		c.IncSuperseded()
		c.ObserveSave(1, 1, 0)
	})
	assert.Nil(t, c.Registry())
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.SetSessions(2)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "sessionedit_sessions 2"))
}
