// Package metrics mantém o registry Prometheus do gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry agrupa o registry privado e as métricas do próprio gateway.
// Evita o DefaultRegisterer global para que testes possam criar instâncias isoladas.
type Registry struct {
	reg *prometheus.Registry

	InFlight     prometheus.Gauge
	BreakerState *prometheus.GaugeVec
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	factory := promauto.With(reg)
	return &Registry{
		reg: reg,
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_requests_in_flight",
			Help: "Requests currently being proxied",
		}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ratelimit_redis_breaker_state",
			Help: "1 for the current state of the Redis circuit breaker",
		}, []string{"state"}),
	}
}

func (r *Registry) Registerer() prometheus.Registerer { return r.reg }
func (r *Registry) Gatherer() prometheus.Gatherer     { return r.reg }

// SetBreakerState marca o estado atual do circuit breaker (closed/half-open/open).
func (r *Registry) SetBreakerState(state string) {
	for _, s := range []string{"closed", "half-open", "open"} {
		v := 0.0
		if s == state {
			v = 1
		}
		r.BreakerState.WithLabelValues(s).Set(v)
	}
}

// TrackInFlight mede quantas requisições estão passando pelo handler.
func (r *Registry) TrackInFlight(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerInFlight(r.InFlight, next)
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
