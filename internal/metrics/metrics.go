// Package metrics exposes Prometheus counters for collision checks.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// Collector bundles the collision check metrics. It satisfies the
// engine's Recorder interface.
type Collector struct {
	gatherer prometheus.Gatherer

	Results  *prometheus.CounterVec
	Skipped  *prometheus.CounterVec
	Duration prometheus.Histogram
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice returns the existing
// collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	results, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gantryguard_control_points_total",
		Help: "Evaluated control points, labeled by channel (patient, couch) and collision level.",
	}, []string{"channel", "level"}), "gantryguard_control_points_total")
	if err != nil {
		return nil, err
	}

	skipped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gantryguard_skipped_total",
		Help: "Plans or beams not evaluated, labeled by reason.",
	}, []string{"reason"}), "gantryguard_skipped_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gantryguard_plan_check_duration_seconds",
		Help:    "Plan collision check latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "gantryguard_plan_check_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer: gatherer,
		Results:  results,
		Skipped:  skipped,
		Duration: duration,
	}, nil
}

// ObserveResult counts one evaluated channel of one control point.
func (c *Collector) ObserveResult(channel string, level model.CollisionLevel) {
	if c == nil || c.Results == nil {
		return
	}
	c.Results.WithLabelValues(channel, level.String()).Inc()
}

// ObserveSkipped counts a plan or beam that was not evaluated.
func (c *Collector) ObserveSkipped(reason string) {
	if c == nil || c.Skipped == nil {
		return
	}
	c.Skipped.WithLabelValues(reason).Inc()
}

// ObserveDuration records the wall time of one plan check.
func (c *Collector) ObserveDuration(d time.Duration) {
	if c == nil || c.Duration == nil {
		return
	}
	c.Duration.Observe(d.Seconds())
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
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

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}
