package application

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"parking-gateway/middleware/ratelimit/domain"
)

// ErrNoSlot indica que nenhuma vaga foi adquirida dentro do prazo.
var ErrNoSlot = errors.New("no concurrency slot available")

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration

	inFlight atomic.Int64
}

// Acquire tenta adquirir uma vaga.
//   - Se `AcquireTimeout <= 0`, espera até ctx cancelar.
//   - Se `AcquireTimeout > 0`, espera até o timeout.
//
// O release devolvido é idempotente.
func (s *ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNoSlot
	}

	s.inFlight.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			s.inFlight.Add(-1)
			release()
		}
	}, nil
}

// InFlight devolve quantas vagas estão ocupadas neste momento.
func (s *ConcurrencyService) InFlight() int64 { return s.inFlight.Load() }
