package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsCollector groups the service's Prometheus instruments on a
// private registry so tests can build servers without registration
// collisions.
type metricsCollector struct {
	registry *prometheus.Registry

	stepsCompleted    *prometheus.CounterVec
	sessionsExpired   prometheus.Counter
	confirmsRejected  *prometheus.CounterVec
	activeControllers prometheus.GaugeFunc
}

func newMetricsCollector(activeControllers func() float64) *metricsCollector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &metricsCollector{
		registry: reg,

		stepsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recovery",
			Name:      "steps_completed_total",
			Help:      "count of step completions recorded, by step number",
		}, []string{"step"}),

		sessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "recovery",
			Name:      "sessions_expired_total",
			Help:      "count of sessions ejected by the step deadline",
		}),

		confirmsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recovery",
			Name:      "confirm_rejected_total",
			Help:      "count of rejected payment confirmations, by reason",
		}, []string{"reason"}),

		activeControllers: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "recovery",
			Name:      "active_controllers",
			Help:      "number of live step controllers",
		}, activeControllers),
	}
}

func (m *metricsCollector) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
