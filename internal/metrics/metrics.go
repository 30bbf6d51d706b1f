package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shop"

type Metrics struct {
	OrdersCreated prometheus.Counter
	OrdersUpdated prometheus.Counter
	OrderFailures *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HTTPLatencyMS *prometheus.HistogramVec

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration on the default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Orders committed by the create workflow.",
		}),
		OrdersUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "updated_total",
			Help:      "Orders committed by the update workflow.",
		}),
		OrderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "failures_total",
			Help:      "Rolled back order operations by operation and error kind.",
		}, []string{"operation", "kind"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		HTTPLatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		registerer: reg,
		gatherer:   reg,
	}
	reg.MustRegister(m.OrdersCreated, m.OrdersUpdated, m.OrderFailures, m.HTTPRequests, m.HTTPLatencyMS)
	return m
}

func (m *Metrics) Failure(operation, kind string) {
	m.OrderFailures.WithLabelValues(operation, kind).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{Registry: m.registerer})
}
