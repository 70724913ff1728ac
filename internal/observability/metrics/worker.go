package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics instruments the recognition orchestrator. The cache hit
// counters are the ones worth alerting on: every miss is a billable
// provider call.
type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	cacheLookups    *prometheus.CounterVec
	providerCalls   *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "irs",
			Subsystem: "worker",
			Name:      "task_process_total",
			Help:      "Total processed storage events by outcome.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "irs",
			Subsystem: "worker",
			Name:      "task_process_duration_seconds",
			Help:      "Storage event processing duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "irs",
			Subsystem: "worker",
			Name:      "task_process_in_flight",
			Help:      "Number of in-flight recognition tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "irs",
			Subsystem: "worker",
			Name:      "result_cache_lookups_total",
			Help:      "Result cache lookups by result (hit_success, hit_failure, miss).",
		},
		[]string{"service", "result"},
	)
	providerCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "irs",
			Subsystem: "worker",
			Name:      "provider_calls_total",
			Help:      "Billable recognition provider calls by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, cacheLookups, providerCalls)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		cacheLookups:    cacheLookups,
		providerCalls:   providerCalls,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartTask() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishTask(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) RecordCacheLookup(service, result string) {
	m.cacheLookups.WithLabelValues(service, result).Inc()
}

func (m *WorkerMetrics) RecordProviderCall(service, outcome string) {
	m.providerCalls.WithLabelValues(service, outcome).Inc()
}
