package ratelimit

import (
	"encoding/json"
	"net/http"
	"time"

	"parking-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

type Options struct {
	Limiter         domain.Limiter
	Stats           domain.StatsStore
	KeyFn           KeyFunc
	KeyHeader       string
	PreferForwarded bool
	// RouteFn normaliza o path usado nas estatísticas (padrão: r.URL.Path).
	RouteFn func(r *http.Request) string
	Logger  *zap.Logger
}

// Limiter liga um domain.Limiter à extração de chave de uma requisição HTTP.
type Limiter struct {
	limiter domain.Limiter
	keyFn   KeyFunc
}

func NewLimiter(l domain.Limiter, keyFn KeyFunc) *Limiter {
	if keyFn == nil {
		keyFn = ClientKey
	}
	return &Limiter{limiter: l, keyFn: keyFn}
}

func (l *Limiter) Key(r *http.Request) domain.Key { return domain.Key(l.keyFn(r)) }

// Check consome uma unidade da cota do cliente e devolve a decisão.
func (l *Limiter) Check(r *http.Request) (domain.Decision, error) {
	return l.limiter.Decide(r.Context(), l.Key(r))
}

// Middleware bloqueia com 429 quem estourou a cota. Os headers de cota são
// escritos em toda decisão, liberada ou não.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.PreferForwarded)
	}
	if opts.RouteFn == nil {
		opts.RouteFn = func(r *http.Request) string { return r.URL.Path }
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "ratelimit"))

	lim := NewLimiter(opts.Limiter, opts.KeyFn)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := lim.Key(r)

			dec, err := opts.Limiter.Decide(r.Context(), key)
			if err != nil {
				logger.Error("rate limit decision failed", zap.String("key", string(key)), zap.Error(err))
				writeJSONError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			}

			setQuotaHeaders(w, dec)

			if opts.Stats != nil {
				ev := domain.StatsEvent{
					Key:       key,
					Allowed:   dec.Allowed,
					Method:    r.Method,
					Path:      opts.RouteFn(r),
					Remaining: dec.Remaining,
					At:        time.Now(),
				}
				if err := opts.Stats.Record(r.Context(), ev); err != nil {
					logger.Debug("stats record failed", zap.Error(err))
				}
			}

			if !dec.Allowed {
				logger.Info("request throttled",
					zap.String("key", string(key)),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Time("reset_at", dec.ResetAt))
				w.Header().Set(HeaderRetryAfter, formatRetryAfter(dec.RetryAfter))
				writeJSONError(w, http.StatusTooManyRequests, dec.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setQuotaHeaders(w http.ResponseWriter, dec domain.Decision) {
	h := w.Header()
	h.Set(HeaderLimit, formatInt(dec.Limit))
	h.Set(HeaderRemaining, formatInt(dec.Remaining))
	h.Set(HeaderReset, formatEpochMillis(dec.ResetAt))
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
