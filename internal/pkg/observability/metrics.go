// Package observability exposes Prometheus metrics and OpenTelemetry spans
// for model builds.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BuildCollector bundles the Prometheus metrics of model builds.
type BuildCollector struct {
	gatherer prometheus.Gatherer

	Builds         *prometheus.CounterVec
	PhaseDurations *prometheus.HistogramVec

	Variables   prometheus.Gauge
	Constraints prometheus.Gauge
	SOS2Sets    prometheus.Gauge
}

// NewBuildCollector registers build metrics against reg, defaulting to the
// global Prometheus registry when nil. Metrics already registered by an
// earlier collector are reused.
func NewBuildCollector(reg prometheus.Registerer) (*BuildCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	builds, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mtress_builds_total",
		Help: "Total number of meta model builds, labeled by result.",
	}, []string{"result"}), "mtress_builds_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mtress_build_phase_duration_seconds",
		Help:    "Duration of a single build phase in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"phase"}), "mtress_build_phase_duration_seconds")
	if err != nil {
		return nil, err
	}

	variables, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mtress_model_variables",
		Help: "Number of variables of the last built model.",
	}), "mtress_model_variables")
	if err != nil {
		return nil, err
	}
	constraints, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mtress_model_constraints",
		Help: "Number of constraints of the last built model.",
	}), "mtress_model_constraints")
	if err != nil {
		return nil, err
	}
	sos2, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mtress_model_sos2_sets",
		Help: "Number of SOS2 sets of the last built model.",
	}), "mtress_model_sos2_sets")
	if err != nil {
		return nil, err
	}

	return &BuildCollector{
		gatherer:       gatherer,
		Builds:         builds,
		PhaseDurations: durations,
		Variables:      variables,
		Constraints:    constraints,
		SOS2Sets:       sos2,
	}, nil
}

// ObservePhase records the duration of a finished phase.
func (c *BuildCollector) ObservePhase(phase string, d time.Duration) {
	if c == nil || c.PhaseDurations == nil {
		return
	}
	c.PhaseDurations.WithLabelValues(phase).Observe(d.Seconds())
}

// BuildFinished counts a build and, when it succeeded, records the model size.
func (c *BuildCollector) BuildFinished(err error, variables, constraints, sos2 int) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	if c.Builds != nil {
		c.Builds.WithLabelValues(result).Inc()
	}
	if err != nil {
		return
	}
	if c.Variables != nil {
		c.Variables.Set(float64(variables))
	}
	if c.Constraints != nil {
		c.Constraints.Set(float64(constraints))
	}
	if c.SOS2Sets != nil {
		c.SOS2Sets.Set(float64(sos2))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *BuildCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return g, nil
}
