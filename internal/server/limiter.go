package server

import (
	"context"
	"fmt"

	"parking-gateway/internal/config"
	"parking-gateway/internal/metrics"
	"parking-gateway/middleware/ratelimit/application"
	"parking-gateway/middleware/ratelimit/domain"
	"parking-gateway/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// limiterParts é o que o composition root precisa manter vivo além do Limiter.
type limiterParts struct {
	limiter  domain.Limiter
	janitors []func(ctx context.Context)
}

func buildLimiter(cfg config.Config, rdb redis.UniversalClient, reg *metrics.Registry, logger *zap.Logger) (limiterParts, error) {
	rl := cfg.RateLimit

	if rl.Algorithm == config.AlgorithmTokenBucket {
		tb, err := infra.NewTokenBucket(rl.TokenRPS, rl.TokenBurst,
			infra.WithCleanupEvery(rl.JanitorEvery),
			infra.WithBucketMessage(rl.Message),
		)
		if err != nil {
			return limiterParts{}, fmt.Errorf("token bucket: %w", err)
		}
		logger.Info("rate limiter ready",
			zap.String("algorithm", rl.Algorithm),
			zap.Float64("rps", tb.RPS()),
			zap.Int("burst", tb.Burst()))
		return limiterParts{limiter: tb, janitors: []func(context.Context){tb.StartJanitor}}, nil
	}

	var (
		store    domain.CounterStore
		janitors []func(context.Context)
	)
	switch rl.Store {
	case config.StoreRedis:
		if rdb == nil {
			return limiterParts{}, fmt.Errorf("redis store without client: %w", domain.ErrInvalidConfig)
		}
		store = infra.NewRedisStore(rdb,
			infra.WithKeyPrefix(cfg.Redis.Prefix),
			infra.WithBreakerStateHook(func(from, to string) {
				reg.SetBreakerState(to)
				logger.Warn("redis breaker state changed", zap.String("from", from), zap.String("to", to))
			}),
		)
		reg.SetBreakerState("closed")
	default:
		mem := infra.NewMemoryStore(infra.WithJanitorEvery(rl.JanitorEvery))
		store = mem
		janitors = append(janitors, mem.StartJanitor)
	}

	svc, err := application.NewService(rl.Policy(), store,
		application.WithFailOpen(rl.FailOpen),
		application.WithLogger(logger),
	)
	if err != nil {
		return limiterParts{}, err
	}

	p := svc.Policy()
	logger.Info("rate limiter ready",
		zap.String("algorithm", rl.Algorithm),
		zap.String("store", rl.Store),
		zap.Duration("window", p.Window),
		zap.Int64("max_requests", p.MaxRequests),
		zap.Bool("fail_open", rl.FailOpen))

	return limiterParts{limiter: svc, janitors: janitors}, nil
}

// buildStats devolve o fan-out usado pelo middleware e, quando ligado, o store
// Redis para a rota de debug.
func buildStats(cfg config.Config, rdb redis.UniversalClient, reg *metrics.Registry, debug *infra.MemoryStatsStore) (domain.StatsStore, *infra.RedisStatsStore) {
	stores := []domain.StatsStore{
		infra.NewPrometheusStats(reg.Registerer()),
		debug,
	}
	var shared *infra.RedisStatsStore
	if cfg.Stats.RedisEnabled && rdb != nil {
		shared = infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		)
		stores = append(stores, shared)
	}
	return infra.NewFanoutStats(stores...), shared
}
