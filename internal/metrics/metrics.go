// Package metrics exposes the prediction service counters to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weather-coef/internal/coef"
)

type Metrics struct {
	registry *prometheus.Registry

	observations  *prometheus.CounterVec
	predictions   *prometheus.CounterVec
	failures      *prometheus.CounterVec
	reloads       *prometheus.CounterVec
	activeModel   *prometheus.GaugeVec
	lastPredicted *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		observations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weather_observations_total",
				Help: "Observations received, by source and whether they were usable",
			},
			[]string{"source", "result"},
		),
		predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weather_predictions_total",
				Help: "Predictions produced, by coefficient table",
			},
			[]string{"model_id"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weather_prediction_failures_total",
				Help: "Snapshots that could not be evaluated",
			},
			[]string{"reason"},
		),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weather_model_reloads_total",
				Help: "Coefficient header loads, by result",
			},
			[]string{"result"},
		),
		activeModel: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weather_active_model",
				Help: "1 for the active coefficient table, with its stability flag",
			},
			[]string{"model_id", "unstable"},
		),
		lastPredicted: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weather_last_prediction",
				Help: "Most recent predicted value per device",
			},
			[]string{"device_id", "quantity"},
		),
	}

	m.registry.MustRegister(m.observations, m.predictions, m.failures, m.reloads, m.activeModel, m.lastPredicted)
	return m
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Observation(source string, usable bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !usable {
		result = "invalid"
	}
	m.observations.WithLabelValues(source, result).Inc()
}

func (m *Metrics) Prediction(deviceID, modelID string, temperature, humidity float64) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(modelID).Inc()
	m.lastPredicted.WithLabelValues(deviceID, "temperature").Set(temperature)
	m.lastPredicted.WithLabelValues(deviceID, "humidity").Set(humidity)
}

func (m *Metrics) PredictionFailed(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
}

// ModelLoaded counts a successful load and marks t as the only active table
func (m *Metrics) ModelLoaded(t *coef.Table) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues("ok").Inc()
	m.SetActiveModel(t)
}

func (m *Metrics) ModelLoadFailed() {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues("error").Inc()
}

func (m *Metrics) SetActiveModel(t *coef.Table) {
	if m == nil {
		return
	}
	m.activeModel.Reset()
	unstable := "false"
	if t.Unstable() {
		unstable = "true"
	}
	m.activeModel.WithLabelValues(t.ID, unstable).Set(1)
}
