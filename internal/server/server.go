// Package server é o composition root do gateway: monta o router chi com a
// cadeia de middlewares e sobe os listeners da API e de métricas.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"parking-gateway/internal/config"
	"parking-gateway/internal/metrics"
	"parking-gateway/middleware/accesslog"
	"parking-gateway/middleware/ratelimit"
	"parking-gateway/middleware/ratelimit/domain"
	"parking-gateway/middleware/ratelimit/infra"
	"parking-gateway/middleware/requestid"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Registry
	rdb     redis.UniversalClient

	limiter     domain.Limiter
	stats       *infra.MemoryStatsStore
	sharedStats *infra.RedisStatsStore
	janitors    []func(ctx context.Context)

	handler        http.Handler
	metricsHandler http.Handler
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRedis injeta um cliente já criado (testes usam miniredis).
func WithRedis(rdb redis.UniversalClient) Option {
	return func(s *Server) { s.rdb = rdb }
}

func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.metrics = reg
		}
	}
}

// New monta o servidor. upstream recebe o que passou pelos limites.
func New(cfg config.Config, upstream http.Handler, opts ...Option) (*Server, error) {
	if upstream == nil {
		return nil, errors.New("server: nil upstream handler")
	}
	s := &Server{
		cfg:    cfg,
		logger: zap.NewNop(),
		stats:  infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.Stats.TrackKeys)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewRegistry()
	}

	if s.rdb == nil && cfg.NeedsRedis() {
		s.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := s.rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// Com fail-open o limiter segue liberando até o Redis voltar.
			s.logger.Warn("redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}

	if cfg.RateLimit.Enabled {
		parts, err := buildLimiter(cfg, s.rdb, s.metrics, s.logger)
		if err != nil {
			return nil, err
		}
		s.limiter = parts.limiter
		s.janitors = parts.janitors
	}

	var recorder domain.StatsStore
	recorder, s.sharedStats = buildStats(cfg, s.rdb, s.metrics, s.stats)

	s.handler = s.routes(upstream, recorder)
	s.metricsHandler = s.metricsRoutes()
	return s, nil
}

func (s *Server) routes(upstream http.Handler, stats domain.StatsStore) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(accesslog.Middleware(s.logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.metrics.TrackInFlight)
		r.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Max:            s.cfg.Concurrency.Max,
			AcquireTimeout: s.cfg.Concurrency.Timeout,
			Logger:         s.logger,
		}))
		r.Use(ratelimit.Middleware(ratelimit.Options{
			Limiter:         s.limiter,
			Stats:           stats,
			KeyHeader:       s.cfg.RateLimit.KeyHeader,
			PreferForwarded: s.cfg.RateLimit.PreferForwarded,
			RouteFn:         routePattern,
			Logger:          s.logger,
		}))
		r.Handle("/*", upstream)
	})
	return r
}

func (s *Server) metricsRoutes() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/debug/ratelimit", func(w http.ResponseWriter, r *http.Request) {
		out := debugStats{StatsSnapshot: s.stats.Snapshot()}
		if s.sharedStats != nil {
			if total, err := s.sharedStats.Totals(r.Context()); err == nil {
				out.ClusterTotal = &total
			}
			if top, err := s.sharedStats.Throttled(r.Context(), 10); err == nil {
				out.TopThrottled = top
			}
		}
		writeJSON(w, http.StatusOK, out)
	})
	return r
}

type debugStats struct {
	infra.StatsSnapshot
	ClusterTotal *infra.Counters         `json:"cluster_total,omitempty"`
	TopThrottled []infra.ThrottledClient `json:"top_throttled,omitempty"`
}

// routePattern usa o padrão da rota do chi para não explodir a cardinalidade
// das estatísticas com paths contendo ids.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

func (s *Server) Handler() http.Handler { return s.handler }

// MetricsHandler serve /metrics e /debug/ratelimit.
func (s *Server) MetricsHandler() http.Handler { return s.metricsHandler }

func (s *Server) Stats() *infra.MemoryStatsStore { return s.stats }

// Run sobe os listeners e bloqueia até ctx ser cancelado ou um deles falhar.
func (s *Server) Run(ctx context.Context) error {
	apiLn, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.ListenAddr, err)
	}
	var metricsLn net.Listener
	if s.cfg.Server.MetricsAddr != "" {
		metricsLn, err = net.Listen("tcp", s.cfg.Server.MetricsAddr)
		if err != nil {
			_ = apiLn.Close()
			return fmt.Errorf("listen %s: %w", s.cfg.Server.MetricsAddr, err)
		}
	}
	return s.Serve(ctx, apiLn, metricsLn)
}

// Serve é o Run com listeners já abertos; metricsLn pode ser nil.
func (s *Server) Serve(ctx context.Context, apiLn, metricsLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, start := range s.janitors {
		start(gctx)
	}

	servers := []*http.Server{newHTTPServer(s.handler)}
	listeners := []net.Listener{apiLn}
	if metricsLn != nil {
		servers = append(servers, newHTTPServer(s.metricsHandler))
		listeners = append(listeners, metricsLn)
	}

	for i := range servers {
		srv, ln := servers[i], listeners[i]
		g.Go(func() error {
			s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", ln.Addr(), err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		timeout := s.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		if s.rdb != nil {
			if err := s.rdb.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.logger.Info("server stopped")
		return errors.Join(errs...)
	})

	return g.Wait()
}

func newHTTPServer(h http.Handler) *http.Server {
	return &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
