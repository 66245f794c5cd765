// Package config carrega a configuração do gateway a partir de arquivo YAML
// opcional, .env e variáveis de ambiente (via viper).
//
// As chaves aninhadas viram variáveis com "_" : rate_limit.window_ms é lida de
// RATE_LIMIT_WINDOW_MS, rate_limit.max_requests de RATE_LIMIT_MAX_REQUESTS.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"parking-gateway/middleware/ratelimit/domain"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	AlgorithmFixedWindow = "fixed-window"
	AlgorithmTokenBucket = "token-bucket"

	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit" yaml:"rate_limit"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency" yaml:"concurrency"`
	Redis       RedisConfig       `mapstructure:"redis" yaml:"redis"`
	Stats       StatsConfig       `mapstructure:"stats" yaml:"stats"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	UpstreamURL     string        `mapstructure:"upstream_url" yaml:"upstream_url"`
	MetricsAddr     string        `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	WindowMS        int64         `mapstructure:"window_ms" yaml:"window_ms"`
	MaxRequests     int64         `mapstructure:"max_requests" yaml:"max_requests"`
	Message         string        `mapstructure:"message" yaml:"message"`
	Algorithm       string        `mapstructure:"algorithm" yaml:"algorithm"`
	Store           string        `mapstructure:"store" yaml:"store"`
	FailOpen        bool          `mapstructure:"fail_open" yaml:"fail_open"`
	KeyHeader       string        `mapstructure:"key_header" yaml:"key_header"`
	PreferForwarded bool          `mapstructure:"prefer_forwarded" yaml:"prefer_forwarded"`
	JanitorEvery    time.Duration `mapstructure:"janitor_every" yaml:"janitor_every"`
	TokenRPS        float64       `mapstructure:"token_rps" yaml:"token_rps"`
	TokenBurst      int           `mapstructure:"token_burst" yaml:"token_burst"`
}

type ConcurrencyConfig struct {
	Max     int           `mapstructure:"max" yaml:"max"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

type StatsConfig struct {
	RedisEnabled bool          `mapstructure:"redis_enabled" yaml:"redis_enabled"`
	Prefix       string        `mapstructure:"prefix" yaml:"prefix"`
	TTL          time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Bucket       string        `mapstructure:"bucket" yaml:"bucket"`
	TrackKeys    bool          `mapstructure:"track_keys" yaml:"track_keys"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Policy converte a seção rate_limit na policy de janela fixa.
func (c RateLimitConfig) Policy() domain.Policy {
	return domain.Policy{
		Window:      time.Duration(c.WindowMS) * time.Millisecond,
		MaxRequests: c.MaxRequests,
		Message:     c.Message,
	}
}

// NewViper cria uma instância com os defaults e a leitura de ambiente ligada.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Nomes herdados da versão anterior do gateway.
	_ = v.BindEnv("server.listen_addr", "SERVER_LISTEN_ADDR", "LISTEN_ADDR")
	_ = v.BindEnv("server.upstream_url", "SERVER_UPSTREAM_URL", "UPSTREAM_URL")
	_ = v.BindEnv("rate_limit.key_header", "RATE_LIMIT_KEY_HEADER", "RATE_KEY_HEADER")
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.upstream_url", "")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.window_ms", domain.DefaultWindow.Milliseconds())
	v.SetDefault("rate_limit.max_requests", domain.DefaultMaxRequests)
	v.SetDefault("rate_limit.message", domain.DefaultMessage)
	v.SetDefault("rate_limit.algorithm", AlgorithmFixedWindow)
	v.SetDefault("rate_limit.store", StoreMemory)
	v.SetDefault("rate_limit.fail_open", true)
	v.SetDefault("rate_limit.key_header", "")
	v.SetDefault("rate_limit.prefer_forwarded", false)
	v.SetDefault("rate_limit.janitor_every", 2*time.Minute)
	v.SetDefault("rate_limit.token_rps", 10.0)
	v.SetDefault("rate_limit.token_burst", 20)

	v.SetDefault("concurrency.max", 100)
	v.SetDefault("concurrency.timeout", time.Duration(0))

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "ratelimit:window")

	v.SetDefault("stats.redis_enabled", false)
	v.SetDefault("stats.prefix", "ratelimit:stats")
	v.SetDefault("stats.ttl", 24*time.Hour)
	v.SetDefault("stats.bucket", "minute")
	v.SetDefault("stats.track_keys", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadEnvFile carrega um .env no ambiente do processo. Arquivo ausente não é erro.
func LoadEnvFile(path string) (bool, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	return true, nil
}

// Load lê o arquivo (se informado), aplica ambiente/flags já ligados em v e valida.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Server.UpstreamURL != "" {
		if _, err := url.ParseRequestURI(c.Server.UpstreamURL); err != nil {
			return fmt.Errorf("server.upstream_url: %w", err)
		}
	}

	rl := c.RateLimit
	if rl.WindowMS <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must be > 0, got %d: %w", rl.WindowMS, domain.ErrInvalidConfig)
	}
	if rl.MaxRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_REQUESTS must be > 0, got %d: %w", rl.MaxRequests, domain.ErrInvalidConfig)
	}

	switch rl.Algorithm {
	case AlgorithmFixedWindow:
	case AlgorithmTokenBucket:
		if rl.TokenRPS <= 0 || rl.TokenBurst <= 0 {
			return fmt.Errorf("token bucket needs token_rps > 0 and token_burst > 0: %w", domain.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("unknown rate_limit.algorithm %q: %w", rl.Algorithm, domain.ErrInvalidConfig)
	}

	switch rl.Store {
	case StoreMemory:
	case StoreRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("REDIS_ADDR is required when RATE_LIMIT_STORE=redis: %w", domain.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("unknown rate_limit.store %q: %w", rl.Store, domain.ErrInvalidConfig)
	}

	if c.Stats.RedisEnabled && strings.TrimSpace(c.Redis.Addr) == "" {
		return fmt.Errorf("REDIS_ADDR is required when STATS_REDIS_ENABLED=true: %w", domain.ErrInvalidConfig)
	}
	if c.Concurrency.Max < 0 {
		return fmt.Errorf("CONCURRENCY_MAX must be >= 0: %w", domain.ErrInvalidConfig)
	}
	return nil
}

// NeedsRedis indica se algum componente usa o Redis.
func (c Config) NeedsRedis() bool {
	return c.RateLimit.Store == StoreRedis || c.Stats.RedisEnabled
}
