package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type DispatcherMetrics struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	dispatchInFlight prometheus.Gauge
}

func NewDispatcherMetrics(service string) *DispatcherMetrics {
	registry := prometheus.NewRegistry()

	dispatchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "irs",
			Subsystem: "dispatcher",
			Name:      "dispatch_total",
			Help:      "Total handled task change notifications by outcome (ok, error).",
		},
		[]string{"service", "outcome"},
	)
	dispatchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "irs",
			Subsystem: "dispatcher",
			Name:      "dispatch_duration_seconds",
			Help:      "Change notification handling duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	dispatchInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "irs",
			Subsystem: "dispatcher",
			Name:      "dispatch_in_flight",
			Help:      "Number of in-flight dispatch attempts.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(dispatchTotal, dispatchDuration, dispatchInFlight)

	return &DispatcherMetrics{
		registry:         registry,
		dispatchTotal:    dispatchTotal,
		dispatchDuration: dispatchDuration,
		dispatchInFlight: dispatchInFlight,
	}
}

func (m *DispatcherMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *DispatcherMetrics) StartDispatch() {
	m.dispatchInFlight.Inc()
}

func (m *DispatcherMetrics) FinishDispatch(service, outcome string, duration time.Duration) {
	m.dispatchInFlight.Dec()
	m.dispatchTotal.WithLabelValues(service, outcome).Inc()
	m.dispatchDuration.WithLabelValues(service).Observe(duration.Seconds())
}
