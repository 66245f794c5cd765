package infra

import (
	"context"
	"math"
	"sync"
	"time"

	"parking-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// TokenBucket é um domain.Limiter alternativo baseado em token-bucket (x/time/rate)
// com um limiter por chave e limpeza de chaves ociosas.
//
// Na decisão: Limit = burst, Remaining = tokens inteiros restantes e ResetAt =
// instante em que o balde volta a ficar cheio.
type TokenBucket struct {
	mu           sync.Mutex
	entries      map[string]*bucketEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	message      string
	now          func() time.Time
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type TokenBucketOption func(*TokenBucket)

func WithIdleTTL(d time.Duration) TokenBucketOption {
	return func(s *TokenBucket) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) TokenBucketOption {
	return func(s *TokenBucket) { s.cleanupEvery = d }
}

func WithBucketMessage(msg string) TokenBucketOption {
	return func(s *TokenBucket) { s.message = msg }
}

func WithBucketClock(now func() time.Time) TokenBucketOption {
	return func(s *TokenBucket) { s.now = now }
}

func NewTokenBucket(rps float64, burst int, opts ...TokenBucketOption) (*TokenBucket, error) {
	if rps <= 0 || burst <= 0 {
		return nil, domain.ErrInvalidConfig
	}
	s := &TokenBucket{
		entries:      make(map[string]*bucketEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		message:      domain.DefaultMessage,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *TokenBucket) RPS() float64 { return float64(s.rps) }
func (s *TokenBucket) Burst() int   { return s.burst }

// Decide implementa domain.Limiter.
func (s *TokenBucket) Decide(_ context.Context, key domain.Key) (domain.Decision, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[string(key)]
	if !ok {
		ent = &bucketEntry{lim: rate.NewLimiter(s.rps, s.burst)}
		s.entries[string(key)] = ent
	}
	ent.lastSeen = now

	allowed := ent.lim.AllowN(now, 1)
	tokens := ent.lim.TokensAt(now)

	dec := domain.Decision{
		Allowed:   allowed,
		Limit:     int64(s.burst),
		Remaining: int64(math.Max(0, math.Floor(tokens))),
		ResetAt:   now.Add(s.refill(float64(s.burst) - tokens)),
		Message:   s.message,
	}
	if !allowed {
		dec.RetryAfter = s.refill(1 - tokens)
	}
	return dec, nil
}

// refill devolve quanto tempo leva para gerar `missing` tokens.
func (s *TokenBucket) refill(missing float64) time.Duration {
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(s.rps) * float64(time.Second))
}

func (s *TokenBucket) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

func (s *TokenBucket) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *TokenBucket) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
