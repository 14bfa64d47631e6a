package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "given-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "given-id", seen)
}

func TestRequestID_ReplacesUnusableHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	for _, given := range []string{"has space", "line\nbreak", strings.Repeat("x", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, given)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.NotEqual(t, given, seen)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err, "a fresh id replaces %q", given)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestFields_CarriesRequestAndSession(t *testing.T) {
	var fields []zap.Field
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Post("/v1/sessions/{sessionID}/responses", func(w http.ResponseWriter, r *http.Request) {
		fields = RequestFields(r)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s-9/responses", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	assert.Equal(t, map[string]any{"request_id": "req-1", "session_id": "s-9"}, enc.Fields)
}

func TestRateLimit_PerUser(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Use(RateLimit(1, 1, nil))
		r.Get("/", ok)
	})

	do := func(path string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("/users/u1/"))
	assert.Equal(t, http.StatusTooManyRequests, do("/users/u1/"))
	assert.Equal(t, http.StatusOK, do("/users/u2/"))
}

func TestRateLimiter_EvictsStaleLimiters(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < maxLimiters; i++ {
		rl.limiters[fmt.Sprintf("k%d", i)] = &limiterEntry{lastSeen: now.Add(-time.Hour)}
	}
	require.True(t, rl.Allow("fresh"))
	assert.Equal(t, 1, rl.size())
}

func TestUserKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "ip:10.0.0.1:1234", UserKey(req))

	req.Header.Set("X-Real-IP", "192.168.1.5")
	assert.Equal(t, "ip:192.168.1.5", UserKey(req))
}

func TestHTTPMetrics_RecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/sessions/{sessionID}", ok)

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/v1/sessions/{sessionID}", "200")))
}

func TestLogging_IncludesRouteParams(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	r := chi.NewRouter()
	r.Use(Logging(zap.New(core)))
	r.Get("/v1/users/{userID}/hypotheses", ok)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/users/u42/hypotheses", nil))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "u42", fields["user_id"])
	assert.Equal(t, "/v1/users/{userID}/hypotheses", fields["route"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}
