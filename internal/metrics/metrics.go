// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics interface used by the analysis and presentation layers.
type Recorder interface {
	RecordPrediction(kind string, duration time.Duration, outcome string)
	RecordAnalysis(duration time.Duration, outcome string)
	RecordSave(outcome string)
	RecordShare(method string)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	predictions       *prometheus.CounterVec
	predictionLatency *prometheus.HistogramVec
	analyses          *prometheus.CounterVec
	analysisLatency   prometheus.Histogram
	saves             *prometheus.CounterVec
	shares            *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hijabist_predictions_total",
			Help: "Prediction requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		predictionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hijabist_prediction_latency_seconds",
			Help:    "Prediction request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hijabist_analyses_total",
			Help: "Combined analyses by outcome",
		}, []string{"outcome"}),
		analysisLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hijabist_analysis_latency_seconds",
			Help:    "Combined analysis latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hijabist_saves_total",
			Help: "Save attempts by outcome",
		}, []string{"outcome"}),
		shares: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hijabist_shares_total",
			Help: "Shares by delivery method",
		}, []string{"method"}),
	}

	reg.MustRegister(
		c.predictions,
		c.predictionLatency,
		c.analyses,
		c.analysisLatency,
		c.saves,
		c.shares,
	)

	return c
}

// RecordPrediction records one prediction call.
func (c *Collector) RecordPrediction(kind string, duration time.Duration, outcome string) {
	c.predictions.WithLabelValues(kind, outcome).Inc()
	c.predictionLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordAnalysis records one combined analysis.
func (c *Collector) RecordAnalysis(duration time.Duration, outcome string) {
	c.analyses.WithLabelValues(outcome).Inc()
	c.analysisLatency.Observe(duration.Seconds())
}

// RecordSave records a save attempt.
func (c *Collector) RecordSave(outcome string) {
	c.saves.WithLabelValues(outcome).Inc()
}

// RecordShare records a share and the path it took.
func (c *Collector) RecordShare(method string) {
	c.shares.WithLabelValues(method).Inc()
}

// Noop discards everything. Used by the CLI and in tests.
type Noop struct{}

func (Noop) RecordPrediction(string, time.Duration, string) {}
func (Noop) RecordAnalysis(time.Duration, string)           {}
func (Noop) RecordSave(string)                              {}
func (Noop) RecordShare(string)                             {}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
