package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sessionedit/internal/metrics"
	"github.com/sessionedit/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loaderFunc func(ctx context.Context, id string) (*session.Session, error)

func (f loaderFunc) Get(ctx context.Context, id string) (*session.Session, error) { return f(ctx, id) }

func TestSessionRequired(t *testing.T) {
	known := session.New("abc", nil, nil)
	loader := loaderFunc(func(_ context.Context, id string) (*session.Session, error) {
		switch id {
		case "abc":
			return known, nil
		case "broken":
			return nil, errors.New("redis down")
		}
		return nil, session.ErrSessionNotFound
	})
	var got *session.Session
	h := SessionRequired(loader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetSession(r.Context())
	}))

	cases := []struct {
		name   string
		req    func() *http.Request
		status int
		body   string
	}{
		{"header", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/api/state", nil)
			r.Header.Set("X-Session-Id", "abc")
			return r
		}, http.StatusOK, ""},
		{"query", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/ws?session_id=abc", nil)
		}, http.StatusOK, ""},
		{"missing", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/api/state", nil)
		}, http.StatusUnauthorized, `{"error":"session required"}`},
		{"unknown", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/api/state?session_id=nope", nil)
		}, http.StatusNotFound, `{"error":"session not found"}`},
		{"store failure", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/api/state?session_id=broken", nil)
		}, http.StatusInternalServerError, `{"error":"internal server error"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got = nil
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tc.req())
			assert.Equal(t, tc.status, rec.Code)
			if tc.body != "" {
				assert.JSONEq(t, tc.body, rec.Body.String())
				assert.Nil(t, got)
				return
			}
			assert.Same(t, known, got)
		})
	}
}

func TestGetSession_Empty(t *testing.T) {
	assert.Nil(t, GetSession(context.Background()))
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(addr string) int {
		r := httptest.NewRequest(http.MethodGet, "/api/state", nil)
		r.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:5000"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:5001"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:5002"), "burst is per IP, not per port")
	assert.Equal(t, http.StatusOK, do("10.0.0.2:5000"))

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, do("10.0.0.1:5003"))

	now = now.Add(limiterIdle + time.Second)
	do("10.0.0.3:1")
	l.mu.Lock()
	assert.Len(t, l.visitors, 1)
	l.mu.Unlock()
}

func TestRecoverJSON(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestRecoverJSON_AfterWrite(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRequestLog_UsesRoutePattern(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(RecoverJSON, RequestLog(m))
	r.Post("/api/messages/{key}/click", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	for _, key := range []string{"0,1", "0,2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages/"+key+"/click", nil))
		require.Equal(t, http.StatusConflict, rec.Code)
	}

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() != "sessionedit_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["route"] == "/api/messages/{key}/click" {
				found = true
				assert.Equal(t, "409", labels["status"])
				assert.Equal(t, float64(2), metric.GetCounter().GetValue())
			}
		}
	}
	assert.True(t, found)
	n, err := testutil.GatherAndCount(m.Registry(), "sessionedit_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
