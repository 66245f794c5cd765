package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parking-gateway/middleware/ratelimit/application"
	"parking-gateway/middleware/ratelimit/domain"
	"parking-gateway/middleware/ratelimit/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenLimiter struct{}

func (brokenLimiter) Decide(context.Context, domain.Key) (domain.Decision, error) {
	return domain.Decision{}, domain.ErrStoreUnavailable
}

func newFixedWindow(t *testing.T, max int64, window time.Duration, now func() time.Time) *application.Service {
	t.Helper()
	svc, err := application.NewService(
		domain.Policy{Window: window, MaxRequests: max, Message: "slow down, driver"},
		infra.NewMemoryStore(),
		application.WithClock(now),
	)
	require.NoError(t, err)
	return svc
}

func doRequest(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "http://example/api/listings", nil)
	r.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_AllowsThenRejectsSameKey(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	svc := newFixedWindow(t, 2, time.Minute, func() time.Time { return now })

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	h := Middleware(Options{Limiter: svc})(next)

	w1 := doRequest(h, "10.0.0.1:1234")
	require.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, "2", w1.Header().Get(HeaderLimit))
	assert.Equal(t, "1", w1.Header().Get(HeaderRemaining))
	assert.Equal(t, "1060000", w1.Header().Get(HeaderReset))

	w2 := doRequest(h, "10.0.0.1:4321")
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "0", w2.Header().Get(HeaderRemaining))

	w3 := doRequest(h, "10.0.0.1:1234")
	require.Equal(t, http.StatusTooManyRequests, w3.Code)
	assert.Equal(t, "2", w3.Header().Get(HeaderLimit))
	assert.Equal(t, "0", w3.Header().Get(HeaderRemaining))
	assert.Equal(t, "1060000", w3.Header().Get(HeaderReset))
	assert.Equal(t, "60", w3.Header().Get(HeaderRetryAfter))
	assert.Equal(t, "application/json", w3.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w3.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"error": "slow down, driver"}, body)

	assert.Equal(t, 2, calls)
}

func TestMiddleware_DistinctClientsHaveIndependentQuota(t *testing.T) {
	svc := newFixedWindow(t, 1, time.Minute, time.Now)
	h := Middleware(Options{Limiter: svc})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.2:1").Code)
}

func TestMiddleware_KeyByHeader(t *testing.T) {
	svc := newFixedWindow(t, 1, time.Minute, time.Now)
	h := Middleware(Options{Limiter: svc, KeyHeader: "X-Api-Key"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, key := range []string{"k1", "k2"} {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.Header.Set("X-Api-Key", key)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code, "key %s", key)
	}
}

func TestMiddleware_RecordsStats(t *testing.T) {
	svc := newFixedWindow(t, 1, time.Minute, time.Now)
	stats := infra.NewMemoryStatsStore(infra.WithTrackKeys(true))
	h := Middleware(Options{
		Limiter: svc,
		Stats:   stats,
		RouteFn: func(*http.Request) string { return "/api/listings" },
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	doRequest(h, "10.0.0.1:1")
	doRequest(h, "10.0.0.1:1")

	assert.Equal(t, infra.Counters{Allowed: 1, Denied: 1}, stats.Total())
	assert.Equal(t, infra.Counters{Allowed: 1, Denied: 1}, stats.ByRoute()["GET /api/listings"])
	assert.Equal(t, infra.Counters{Allowed: 1, Denied: 1}, stats.ByKey()["10.0.0.1"])
}

func TestMiddleware_StatsFailureDoesNotBlock(t *testing.T) {
	svc := newFixedWindow(t, 5, time.Minute, time.Now)
	h := Middleware(Options{
		Limiter: svc,
		Stats:   infra.NewFanoutStats(failingStats{}),
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:1").Code)
}

type failingStats struct{}

func (failingStats) Record(context.Context, domain.StatsEvent) error { return errors.New("redis down") }

func TestMiddleware_LimiterErrorReturns503(t *testing.T) {
	h := Middleware(Options{Limiter: brokenLimiter{}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next must not be called")
	}))

	w := doRequest(h, "10.0.0.1:1")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, w.Header().Get(HeaderLimit))
	assert.JSONEq(t, `{"error":"rate limiter unavailable"}`, w.Body.String())
}

func TestMiddleware_NilLimiterPassesThrough(t *testing.T) {
	h := Middleware(Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	assert.Equal(t, http.StatusTeapot, doRequest(h, "10.0.0.1:1").Code)
}

func TestLimiter_CheckConsumesQuota(t *testing.T) {
	svc := newFixedWindow(t, 2, time.Minute, time.Now)
	lim := NewLimiter(svc, nil)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "192.168.0.9:5000"

	dec, err := lim.Check(r)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dec.Remaining)
	assert.Equal(t, domain.Key("192.168.0.9"), lim.Key(r))

	dec, _ = lim.Check(r)
	assert.True(t, dec.Allowed)
	dec, _ = lim.Check(r)
	assert.False(t, dec.Allowed)
}

func TestFormatRetryAfter(t *testing.T) {
	assert.Equal(t, "1", formatRetryAfter(0))
	assert.Equal(t, "1", formatRetryAfter(300*time.Millisecond))
	assert.Equal(t, "3", formatRetryAfter(2500*time.Millisecond))
	assert.Equal(t, "60", formatRetryAfter(time.Minute))
}
