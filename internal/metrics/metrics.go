// Package metrics exports task operation metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Observer implements repository.Observer with Prometheus metrics.
type Observer struct {
	operations *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	inFlight   *prometheus.GaugeVec
	duration   *prometheus.HistogramVec
}

// New registers the metrics on reg, labelled with the active backend.
func New(reg prometheus.Registerer, backend string) *Observer {
	factory := promauto.With(reg)
	constLabels := prometheus.Labels{"backend": backend}
	return &Observer{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "gitdeps_operations_total",
				Help:        "Total number of finished repository operations",
				ConstLabels: constLabels,
			},
			[]string{"op", "result"},
		),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "gitdeps_operations_rejected_total",
				Help:        "Operations refused because another one was in progress",
				ConstLabels: constLabels,
			},
			[]string{"op"},
		),
		inFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "gitdeps_operations_in_flight",
				Help:        "Repository operations currently running",
				ConstLabels: constLabels,
			},
			[]string{"op"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "gitdeps_operation_duration_seconds",
				Help:        "Duration of repository operations",
				ConstLabels: constLabels,
				Buckets:     []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"op"},
		),
	}
}

func (o *Observer) Started(op string) {
	o.inFlight.WithLabelValues(op).Inc()
}

func (o *Observer) Finished(op string, ok bool, elapsed time.Duration) {
	result := resultSuccess
	if !ok {
		result = resultFailure
	}
	o.inFlight.WithLabelValues(op).Dec()
	o.operations.WithLabelValues(op, result).Inc()
	o.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (o *Observer) Rejected(op string) {
	o.rejected.WithLabelValues(op).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
