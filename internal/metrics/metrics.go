// Package metrics holds the Prometheus collectors for calculations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MikeSquared-Agency/Ranker/internal/topsis"
)

const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

type Metrics struct {
	Calculations  *prometheus.CounterVec
	Duration      prometheus.Histogram
	LowConfidence prometheus.Counter
	Stages        *prometheus.CounterVec
	ProblemSize   *prometheus.HistogramVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Calculations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ranker_calculations_total",
			Help: "TOPSIS calculations by outcome.",
		}, []string{"outcome"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ranker_calculation_duration_seconds",
			Help:    "Wall time of a calculation including load and persist.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		LowConfidence: f.NewCounter(prometheus.CounterOpts{
			Name: "ranker_low_confidence_total",
			Help: "Calculations that produced a low-confidence result.",
		}),
		Stages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ranker_stage_completed_total",
			Help: "Engine stages completed.",
		}, []string{"stage"}),
		ProblemSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ranker_problem_size",
			Help:    "Alternatives and criteria per calculated problem.",
			Buckets: []float64{2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"dimension"}),
	}
}

// ObserveCalculation records one finished calculation. Nil receivers are no-ops.
func (m *Metrics) ObserveCalculation(outcome string, d time.Duration, lowConfidence bool) {
	if m == nil {
		return
	}
	m.Calculations.WithLabelValues(outcome).Inc()
	m.Duration.Observe(d.Seconds())
	if lowConfidence {
		m.LowConfidence.Inc()
	}
}

func (m *Metrics) ObserveProblem(alternatives, criteria int) {
	if m == nil {
		return
	}
	m.ProblemSize.WithLabelValues("alternatives").Observe(float64(alternatives))
	m.ProblemSize.WithLabelValues("criteria").Observe(float64(criteria))
}

func (m *Metrics) StageCompleted(stage topsis.Stage) {
	if m == nil {
		return
	}
	m.Stages.WithLabelValues(string(stage)).Inc()
}
