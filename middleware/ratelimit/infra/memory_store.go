package infra

import (
	"context"
	"sync"
	"time"

	"parking-gateway/middleware/ratelimit/domain"
)

// MemoryStore guarda os contadores de janela fixa em memória, por processo.
//
// Cada Hit é uma seção crítica única (limpeza + busca + mutação), então duas
// requisições simultâneas da mesma chave nunca enxergam o mesmo count.
type MemoryStore struct {
	mu           sync.Mutex
	entries      map[string]*domain.Counter
	cleanupEvery time.Duration
}

type MemoryStoreOption func(*MemoryStore)

// WithJanitorEvery define o intervalo da limpeza periódica (StartJanitor).
// A limpeza oportunista dentro de Hit continua acontecendo de qualquer forma.
func WithJanitorEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries:      make(map[string]*domain.Counter),
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hit implementa domain.CounterStore. Nunca devolve erro.
func (s *MemoryStore) Hit(_ context.Context, key domain.Key, now time.Time, window time.Duration) (domain.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// O(n) por chamada; suficiente para um filtro local de um processo.
	s.sweepLocked(now)

	k := string(key)
	c, ok := s.entries[k]
	switch {
	case !ok, c.Expired(now):
		c = &domain.Counter{Count: 1, ResetAt: now.Add(window)}
		s.entries[k] = c
	default:
		c.Count++
	}
	return *c, nil
}

// Sweep remove as entradas cuja janela terminou antes de `now`.
// Devolve quantas foram removidas.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	removed := 0
	for k, c := range s.entries {
		if c.ResetAt.Before(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor inicia uma goroutine que limpa chaves expiradas periodicamente,
// mesmo sem tráfego. Pare cancelando o contexto.
func (s *MemoryStore) StartJanitor(ctx context.Context) {
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
			case now := <-t.C:
				s.Sweep(now)
			}
		}
	}()
}
