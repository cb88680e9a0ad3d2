// Package metrics holds the Prometheus collectors shared by detection, ritual
// sessions and the transcript bridge. Collectors register on an injected
// registry so tests and embedders never touch the global default.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linaje"

// Detection outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeStale = "stale"
	OutcomeError = "error"
)

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry         *prometheus.Registry
	detectionRuns    *prometheus.CounterVec
	patternsActive   prometheus.Gauge
	voiceValidations *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	transcripts      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil registry gets
// a fresh one.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		detectionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_runs_total",
			Help:      "Pattern detection passes by outcome.",
		}, []string{"outcome"}),
		patternsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "patterns_active",
			Help:      "Unresolved patterns after the latest detection pass.",
		}),
		voiceValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_validations_total",
			Help:      "Anchor validations by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ritual_transitions_total",
			Help:      "Ritual phase transition attempts.",
		}, []string{"from", "to", "result"}),
		transcripts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_transcripts_total",
			Help:      "Transcripts received by the bridge by status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.detectionRuns, m.patternsActive, m.voiceValidations, m.transitions, m.transcripts)
	return m
}

// Registry exposes the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveDetection counts one detection pass.
func (m *Metrics) ObserveDetection(outcome string) {
	if m == nil {
		return
	}
	m.detectionRuns.WithLabelValues(outcome).Inc()
}

// SetActivePatterns records how many unresolved patterns exist.
func (m *Metrics) SetActivePatterns(n int) {
	if m == nil {
		return
	}
	m.patternsActive.Set(float64(n))
}

// ObserveValidation counts one anchor validation.
func (m *Metrics) ObserveValidation(success bool) {
	if m == nil {
		return
	}
	m.voiceValidations.WithLabelValues(result(success)).Inc()
}

// ObserveTransition counts one phase transition attempt.
func (m *Metrics) ObserveTransition(from, to string, accepted bool) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, strconv.FormatBool(accepted)).Inc()
}

// ObserveTranscript counts one bridge submission.
func (m *Metrics) ObserveTranscript(status string) {
	if m == nil {
		return
	}
	m.transcripts.WithLabelValues(status).Inc()
}

func result(success bool) string {
	if success {
		return "pass"
	}
	return "fail"
}
