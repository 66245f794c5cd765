package infra

import (
	"context"

	"parking-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusStats exporta as decisões como métricas.
//
// Labels de baixa cardinalidade apenas: a chave do cliente nunca vira label.
type PrometheusStats struct {
	decisions *prometheus.CounterVec
	remaining prometheus.Histogram
}

func NewPrometheusStats(reg prometheus.Registerer) *PrometheusStats {
	factory := promauto.With(reg)
	return &PrometheusStats{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_decisions_total",
				Help: "Rate limit decisions by result and route",
			},
			[]string{"result", "method", "route"},
		),
		remaining: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ratelimit_remaining_quota",
				Help:    "Remaining quota reported on each decision",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
			},
		),
	}
}

func (s *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	result := "denied"
	if ev.Allowed {
		result = "allowed"
	}
	s.decisions.WithLabelValues(result, ev.Method, ev.Path).Inc()
	s.remaining.Observe(float64(ev.Remaining))
	return nil
}
