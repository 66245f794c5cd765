package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"parking-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// fixedWindowLua incrementa o contador e arma o PEXPIRE no primeiro hit da janela.
// Devolve {count, pttl_ms}.
const fixedWindowLua = `
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if count == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

// RedisStore é um CounterStore compartilhado entre instâncias do gateway.
//
// O relógio da janela é o TTL da chave no Redis; `now` só é usado para converter
// o TTL em instante absoluto. Falhas seguidas abrem o circuit breaker e as
// chamadas seguintes falham na hora, sem tocar a rede.
type RedisStore struct {
	rdb     redis.Scripter
	script  *redis.Script
	prefix  string
	breaker *gobreaker.CircuitBreaker
}

type RedisStoreOption func(*redisStoreSettings)

type redisStoreSettings struct {
	prefix       string
	maxFailures  uint32
	openTimeout  time.Duration
	onBreakState func(from, to string)
}

func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *redisStoreSettings) { s.prefix = strings.Trim(prefix, ":") }
}

// WithBreaker define quantas falhas consecutivas abrem o circuito e por quanto
// tempo ele fica aberto antes de testar o Redis de novo.
func WithBreaker(maxFailures uint32, openTimeout time.Duration) RedisStoreOption {
	return func(s *redisStoreSettings) {
		s.maxFailures = maxFailures
		s.openTimeout = openTimeout
	}
}

// WithBreakerStateHook é chamado a cada troca de estado do circuit breaker.
func WithBreakerStateHook(fn func(from, to string)) RedisStoreOption {
	return func(s *redisStoreSettings) { s.onBreakState = fn }
}

func NewRedisStore(rdb redis.Scripter, opts ...RedisStoreOption) *RedisStore {
	cfg := redisStoreSettings{
		prefix:      "ratelimit:window",
		maxFailures: 5,
		openTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	settings := gobreaker.Settings{
		Name:        "ratelimit-redis",
		MaxRequests: 1,
		Timeout:     cfg.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.maxFailures
		},
	}
	if cfg.onBreakState != nil {
		hook := cfg.onBreakState
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			hook(from.String(), to.String())
		}
	}

	return &RedisStore{
		rdb:     rdb,
		script:  redis.NewScript(fixedWindowLua),
		prefix:  cfg.prefix,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Hit implementa domain.CounterStore.
func (s *RedisStore) Hit(ctx context.Context, key domain.Key, now time.Time, window time.Duration) (domain.Counter, error) {
	if key == "" {
		return domain.Counter{}, domain.ErrEmptyKey
	}

	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.script.Run(ctx, s.rdb, []string{s.prefix + ":" + string(key)}, window.Milliseconds()).Result()
	})
	if err != nil {
		return domain.Counter{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	count, ttl, err := parseWindowResult(out)
	if err != nil {
		return domain.Counter{}, err
	}
	return domain.Counter{
		Count:   count,
		ResetAt: now.Add(time.Duration(ttl) * time.Millisecond),
	}, nil
}

func (s *RedisStore) BreakerState() string { return s.breaker.State().String() }

func parseWindowResult(values interface{}) (count, ttl int64, err error) {
	arr, ok := values.([]interface{})
	if !ok || len(arr) != 2 {
		return 0, 0, fmt.Errorf("unexpected lua result: %v", values)
	}
	if count, err = toInt64(arr[0]); err != nil {
		return 0, 0, err
	}
	if ttl, err = toInt64(arr[1]); err != nil {
		return 0, 0, err
	}
	return count, ttl, nil
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected value type %T", value)
	}
}
