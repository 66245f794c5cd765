package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parking-gateway/internal/config"
	"parking-gateway/middleware/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, overrides map[string]any) config.Config {
	t.Helper()
	v := config.NewViper()
	for k, val := range overrides {
		v.Set(k, val)
	}
	cfg, err := config.Load(v, "")
	require.NoError(t, err)
	return cfg
}

func okUpstream() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func do(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestServer_FixedWindowMemory(t *testing.T) {
	cfg := testConfig(t, map[string]any{"rate_limit.max_requests": 2})
	srv, err := New(cfg, okUpstream())
	require.NoError(t, err)
	h := srv.Handler()

	w := do(h, "/api/listings")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get(ratelimit.HeaderLimit))
	assert.Equal(t, "1", w.Header().Get(ratelimit.HeaderRemaining))
	assert.NotEmpty(t, w.Header().Get(ratelimit.HeaderReset))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusOK, do(h, "/api/bookings").Code)

	w = do(h, "/api/messages")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get(ratelimit.HeaderRemaining))
	assert.NotEmpty(t, w.Header().Get(ratelimit.HeaderRetryAfter))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Too many requests, please try again later.", body["error"])
}

func TestServer_HealthzBypassesLimiter(t *testing.T) {
	cfg := testConfig(t, map[string]any{"rate_limit.max_requests": 1})
	srv, err := New(cfg, okUpstream())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		w := do(srv.Handler(), "/healthz")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get(ratelimit.HeaderLimit))
	}
	assert.Equal(t, http.StatusOK, do(srv.Handler(), "/api/listings").Code)
}

func TestServer_StatsAndMetrics(t *testing.T) {
	cfg := testConfig(t, map[string]any{"rate_limit.max_requests": 1})
	srv, err := New(cfg, okUpstream())
	require.NoError(t, err)

	do(srv.Handler(), "/api/listings")
	do(srv.Handler(), "/api/listings")

	total := srv.Stats().Total()
	assert.Equal(t, int64(1), total.Allowed)
	assert.Equal(t, int64(1), total.Denied)

	w := do(srv.MetricsHandler(), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ratelimit_decisions_total")

	w = do(srv.MetricsHandler(), "/debug/ratelimit")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total"`)
}

func TestServer_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig(t, map[string]any{
		"rate_limit.max_requests": 1,
		"rate_limit.store":        config.StoreRedis,
		"redis.addr":              mr.Addr(),
		"stats.redis_enabled":     true,
	})
	srv, err := New(cfg, okUpstream(), WithRedis(rdb))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, do(srv.Handler(), "/api/listings").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(srv.Handler(), "/api/listings").Code)
	assert.NotEmpty(t, mr.Keys())

	w := do(srv.MetricsHandler(), "/debug/ratelimit")
	assert.Contains(t, w.Body.String(), `"top_throttled"`)
	assert.Contains(t, w.Body.String(), `"cluster_total"`)
}

func TestServer_TokenBucket(t *testing.T) {
	cfg := testConfig(t, map[string]any{
		"rate_limit.algorithm":   config.AlgorithmTokenBucket,
		"rate_limit.token_rps":   0.001,
		"rate_limit.token_burst": 1,
	})
	srv, err := New(cfg, okUpstream())
	require.NoError(t, err)

	w := do(srv.Handler(), "/api/listings")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get(ratelimit.HeaderLimit))
	assert.Equal(t, http.StatusTooManyRequests, do(srv.Handler(), "/api/listings").Code)
}

func TestServer_Disabled(t *testing.T) {
	cfg := testConfig(t, map[string]any{"rate_limit.enabled": false})
	srv, err := New(cfg, okUpstream())
	require.NoError(t, err)

	w := do(srv.Handler(), "/api/listings")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(ratelimit.HeaderLimit))
}

func TestServer_NilUpstream(t *testing.T) {
	_, err := New(testConfig(t, nil), nil)
	assert.Error(t, err)
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	srv, err := New(testConfig(t, nil), okUpstream())
	require.NoError(t, err)

	apiLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	metricsLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, apiLn, metricsLn) }()

	resp, err := http.Get("http://" + apiLn.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
