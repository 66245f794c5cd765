package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Method/Path são strings genéricas; Path deve ser o padrão da rota (ex: "/api/bookings/{id}")
// e não a URL crua, para não explodir a cardinalidade no Redis/Prometheus.
type StatsEvent struct {
	Key     Key
	Allowed bool

	Method string
	Path   string

	Remaining int64

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// O middleware trata erro como best-effort (não derruba a requisição).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
