package infra

import (
	"context"
	"maps"
	"sync"

	"parking-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// StatsSnapshot é uma cópia consistente do MemoryStatsStore num instante.
type StatsSnapshot struct {
	Total   Counters            `json:"total"`
	ByRoute map[string]Counters `json:"by_route"`
	ByKey   map[string]Counters `json:"by_key,omitempty"`
}

// MemoryStatsStore conta decisões da instância local, sem expiração.
// Alimenta a rota /debug/ratelimit e os testes.
type MemoryStatsStore struct {
	mu   sync.Mutex
	snap StatsSnapshot

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

// WithTrackKeys liga a contagem por cliente. Sem limite de cardinalidade.
func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{snap: StatsSnapshot{
		ByRoute: make(map[string]Counters),
		ByKey:   make(map[string]Counters),
	}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Total.add(ev.Allowed)
	bump(s.snap.ByRoute, route, ev.Allowed)
	if s.trackKeys {
		bump(s.snap.ByKey, string(ev.Key), ev.Allowed)
	}
	return nil
}

func bump(m map[string]Counters, k string, allowed bool) {
	c := m[k]
	c.add(allowed)
	m[k] = c
}

func (s *MemoryStatsStore) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Total:   s.snap.Total,
		ByRoute: maps.Clone(s.snap.ByRoute),
		ByKey:   maps.Clone(s.snap.ByKey),
	}
}

func (s *MemoryStatsStore) Total() Counters { return s.Snapshot().Total }

func (s *MemoryStatsStore) ByRoute() map[string]Counters { return s.Snapshot().ByRoute }

func (s *MemoryStatsStore) ByKey() map[string]Counters { return s.Snapshot().ByKey }
