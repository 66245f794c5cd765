package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"parking-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore agrega as decisões em hashes no Redis, compartilhados entre
// instâncias do gateway:
//
//	<prefix>:total                 allowed/denied (cumulativo, não expira)
//	<prefix>:minute:<yyyymmddhhmm> allowed/denied por minuto
//	<prefix>:route                 "<METHOD> <rota>:allowed|denied"
//	<prefix>:key:<key>             allowed/denied por cliente (opcional)
//	<prefix>:throttled             sorted set com os clientes mais bloqueados
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl vale só para as séries por minuto e por cliente.
	ttl       time.Duration
	bucket    string // "minute" (padrão) ou "none"
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := decisionField(ev.Allowed)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.key("total"), field, 1)

	if s.bucket == "minute" {
		minute := s.key("minute", at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, minute, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, minute, s.ttl)
		}
	}

	if route := strings.TrimSpace(ev.Method + " " + ev.Path); route != "" {
		pipe.HIncrBy(ctx, s.key("route"), route+":"+field, 1)
	}

	client := strings.TrimSpace(string(ev.Key))
	if !ev.Allowed && client != "" {
		pipe.ZIncrBy(ctx, s.key("throttled"), 1, client)
	}
	if s.trackKeys && client != "" {
		perKey := s.key("key", client)
		pipe.HIncrBy(ctx, perKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, perKey, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

// Totals lê o acumulado de todas as instâncias.
func (s *RedisStatsStore) Totals(ctx context.Context) (Counters, error) {
	vals, err := s.rdb.HMGet(ctx, s.key("total"), "allowed", "denied").Result()
	if err != nil {
		return Counters{}, fmt.Errorf("read stats totals: %w", err)
	}
	var c Counters
	c.Allowed, _ = toInt64(vals[0])
	c.Denied, _ = toInt64(vals[1])
	return c, nil
}

// Throttled devolve os n clientes com mais bloqueios, do maior para o menor.
func (s *RedisStatsStore) Throttled(ctx context.Context, n int64) ([]ThrottledClient, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, s.key("throttled"), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read throttled clients: %w", err)
	}
	out := make([]ThrottledClient, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, ThrottledClient{Key: member, Denied: int64(z.Score)})
	}
	return out, nil
}

type ThrottledClient struct {
	Key    string `json:"key"`
	Denied int64  `json:"denied"`
}

func decisionField(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
