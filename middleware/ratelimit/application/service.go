package application

import (
	"context"
	"fmt"
	"time"

	"parking-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// Service concentra a regra de aplicação do rate limit de janela fixa.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// A mutação do contador e a decisão acontecem na mesma chamada.
type Service struct {
	policy   domain.Policy
	store    domain.CounterStore
	now      func() time.Time
	failOpen bool
	logger   *zap.Logger
}

type Option func(*Service)

// WithClock troca a fonte de tempo (útil em testes).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFailOpen define o comportamento quando o store falha:
// true libera a requisição com a cota cheia, false devolve erro.
func WithFailOpen(failOpen bool) Option {
	return func(s *Service) { s.failOpen = failOpen }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService valida a policy antes de instanciar: campos ausentes recebem os
// defaults, valores não positivos são erro de configuração.
func NewService(policy domain.Policy, store domain.CounterStore, opts ...Option) (*Service, error) {
	policy = policy.WithDefaults()
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("counter store is nil: %w", domain.ErrInvalidConfig)
	}

	s := &Service{
		policy:   policy,
		store:    store,
		now:      time.Now,
		failOpen: true,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "ratelimit"))
	return s, nil
}

func (s *Service) Policy() domain.Policy { return s.policy }

// Decide implementa domain.Limiter.
func (s *Service) Decide(ctx context.Context, key domain.Key) (domain.Decision, error) {
	if key == "" {
		key = domain.FallbackKey
	}
	now := s.now()

	c, err := s.store.Hit(ctx, key, now, s.policy.Window)
	if err != nil {
		if s.failOpen {
			s.logger.Warn("counter store failed, allowing request",
				zap.String("key", string(key)),
				zap.Error(err))
			return domain.Decision{
				Allowed:   true,
				Limit:     s.policy.MaxRequests,
				Remaining: s.policy.MaxRequests,
				ResetAt:   now.Add(s.policy.Window),
				Message:   s.policy.Message,
			}, nil
		}
		return domain.Decision{}, fmt.Errorf("hit %q: %w: %w", key, domain.ErrStoreUnavailable, err)
	}

	return s.decision(c, now), nil
}

// decision aplica o teto. A contagem já inclui a requisição atual, então a
// requisição que ultrapassa o teto é a própria bloqueada.
func (s *Service) decision(c domain.Counter, now time.Time) domain.Decision {
	dec := domain.Decision{
		Allowed:   c.Count <= s.policy.MaxRequests,
		Limit:     s.policy.MaxRequests,
		Remaining: max(0, s.policy.MaxRequests-c.Count),
		ResetAt:   c.ResetAt,
		Message:   s.policy.Message,
	}
	if !dec.Allowed {
		dec.RetryAfter = max(0, c.ResetAt.Sub(now))
	}
	return dec
}
