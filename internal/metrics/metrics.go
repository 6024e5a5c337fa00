package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkout"

// Metrics is safe to use through a nil pointer; every method is a no-op then.
type Metrics struct {
	Envelopes     *prometheus.CounterVec
	HandleLatency *prometheus.HistogramVec
	SagaResults   *prometheus.CounterVec
	Compensations *prometheus.CounterVec
	Published     *prometheus.CounterVec
	Restarts      *prometheus.CounterVec
}

func New(reg prometheus.Registerer, service string) *Metrics {
	m := &Metrics{
		Envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "envelopes_total",
			Help:      "Envelopes handled, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		HandleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "handle_duration_ms",
			Help:      "Envelope handling latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"operation"}),
		SagaResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "saga_results_total",
			Help:      "Checkout saga executions by result.",
		}, []string{"result"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "compensations_total",
			Help:      "Compensation calls by kind and result.",
		}, []string{"kind", "result"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "publish_total",
			Help:      "Broker writes by result.",
		}, []string{"result"}),
		Restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "supervisor_restarts_total",
			Help:      "Partition loops restarted by the supervisor.",
		}, []string{"partition"}),
	}
	reg.MustRegister(m.Envelopes, m.HandleLatency, m.SagaResults, m.Compensations, m.Published, m.Restarts)
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveEnvelope(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Envelopes.WithLabelValues(operation, outcome).Inc()
	m.HandleLatency.WithLabelValues(operation).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) SagaResult(r string) {
	if m == nil {
		return
	}
	m.SagaResults.WithLabelValues(r).Inc()
}

func (m *Metrics) Compensation(kind string, err error) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(kind, result(err)).Inc()
}

func (m *Metrics) Publish(err error) {
	if m == nil {
		return
	}
	m.Published.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Restart(partition int) {
	if m == nil {
		return
	}
	m.Restarts.WithLabelValues(strconv.Itoa(partition)).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
