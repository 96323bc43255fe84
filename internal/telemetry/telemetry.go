// Package telemetry exposes Prometheus collectors for backtest runs.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"foldcast/internal/domain"
)

const namespace = "foldcast"

// Metrics records fold and run outcomes. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	folds       *prometheus.CounterVec
	foldSeconds *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	runSeconds  prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		folds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "folds_total",
			Help:      "Evaluated folds by status and error kind.",
		}, []string{"status", "kind"}),
		foldSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fold_duration_seconds",
			Help:      "Wall time spent fitting and scoring one fold.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Backtest runs by outcome.",
		}, []string{"outcome"}),
		runSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a whole backtest run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
	reg.MustRegister(m.folds, m.foldSeconds, m.runs, m.runSeconds)
	return m
}

// ObserveFold records one fold outcome.
func (m *Metrics) ObserveFold(r domain.FoldResult, d time.Duration) {
	if m == nil {
		return
	}
	m.folds.WithLabelValues(string(r.Status), string(r.ErrorKind)).Inc()
	m.foldSeconds.WithLabelValues(string(r.Status)).Observe(d.Seconds())
}

// ObserveRun records a finished run. err is the error returned by the run,
// if any.
func (m *Metrics) ObserveRun(err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runSeconds.Observe(d.Seconds())
}
