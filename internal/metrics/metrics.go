// Package metrics exports engine events as Prometheus metrics.
//
// Collector implements engine.Recorder, so it is attached with
// engine.WithRecorder and sees every event of every run.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/applier/internal/engine"
)

// Collector turns engine events into Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	phases       *prometheus.CounterVec
	elements     prometheus.Counter
	failures     *prometheus.CounterVec
	openFailures prometheus.Gauge
	resumptions  prometheus.Counter
	stale        prometheus.Counter
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec

	now     func() time.Time
	mu      sync.Mutex
	started map[string]time.Time
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "applier"
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		now:      time.Now,
		started:  make(map[string]time.Time),
	}

	c.phases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "phases_entered_total",
			Help:      "Total number of phases entered",
		},
		[]string{"phase"},
	)

	c.elements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "elements_applied_total",
			Help:      "Total number of elements the effect was applied to",
		},
	)

	c.failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "failures_total",
			Help:      "Total number of frozen runs",
		},
		[]string{"code", "phase"},
	)

	c.openFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "open_failures",
			Help:      "Failures stored and not yet resumed",
		},
	)

	c.resumptions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "resumptions_total",
			Help:      "Total number of resumed runs",
		},
	)

	c.stale = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "stale_resumptions_total",
			Help:      "Total number of rejected resumptions",
		},
	)

	c.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "calls_total",
			Help:      "Total number of finished Apply and resume calls",
		},
		[]string{"outcome"},
	)

	c.runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "call_duration_seconds",
			Help:      "Wall time of Apply and resume calls",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"outcome"},
	)

	c.registry.MustRegister(
		c.phases,
		c.elements,
		c.failures,
		c.openFailures,
		c.resumptions,
		c.stale,
		c.runs,
		c.runDuration,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Record implements engine.Recorder.
func (c *Collector) Record(_ context.Context, ev engine.Event) error {
	switch ev.Kind {
	case engine.EventRunStarted:
		c.start(ev.RunID)
	case engine.EventResumed:
		c.start(ev.RunID)
		c.resumptions.Inc()
		if ev.FailureID > 0 {
			c.openFailures.Dec()
		}
	case engine.EventPhaseEntered:
		c.phases.WithLabelValues(ev.Phase.String()).Inc()
	case engine.EventElementApplied:
		c.elements.Inc()
	case engine.EventFrozen:
		c.failures.WithLabelValues(string(ev.Code), ev.Phase.String()).Inc()
		c.openFailures.Inc()
	case engine.EventStaleResumption:
		c.stale.Inc()
	case engine.EventRunFinished:
		outcome := "ok"
		if ev.Code != "" {
			outcome = string(ev.Code)
		}
		c.runs.WithLabelValues(outcome).Inc()
		if d, ok := c.finish(ev.RunID); ok {
			c.runDuration.WithLabelValues(outcome).Observe(d.Seconds())
		}
	}
	return nil
}

func (c *Collector) start(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started[runID] = c.now()
}

func (c *Collector) finish(runID string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.started[runID]
	if !ok {
		return 0, false
	}
	delete(c.started, runID)
	return c.now().Sub(t), true
}

// Sample is one gathered value. Histograms report their sample count.
type Sample struct {
	Name   string
	Labels string
	Value  float64
}

func (s Sample) String() string {
	if s.Labels == "" {
		return fmt.Sprintf("%s %g", s.Name, s.Value)
	}
	return fmt.Sprintf("%s{%s} %g", s.Name, s.Labels, s.Value)
}

// Snapshot gathers every non-zero metric, sorted by name and labels.
func (c *Collector) Snapshot() ([]Sample, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var out []Sample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				v = float64(m.GetHistogram().GetSampleCount())
			}
			if v == 0 {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			out = append(out, Sample{Name: mf.GetName(), Labels: strings.Join(labels, ","), Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Labels < out[j].Labels
	})
	return out, nil
}
