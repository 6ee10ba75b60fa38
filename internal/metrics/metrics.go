// Package metrics exports engine tick signals as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hordestream.ai/internal/sim/engine"
)

const namespace = "hordestream"

// Collectors has bounded cardinality: one series per engine id.
type Collectors struct {
	LoadedCells     *prometheus.GaugeVec
	LiveAgents      *prometheus.GaugeVec
	ActiveAgents    *prometheus.GaugeVec
	RenderedAgents  *prometheus.GaugeVec
	EffectiveRadius *prometheus.GaugeVec
	Disabled        *prometheus.GaugeVec

	Spawned        *prometheus.CounterVec
	Destroyed      *prometheus.CounterVec
	Promoted       *prometheus.CounterVec
	Swept          *prometheus.CounterVec
	DuplicateSkips *prometheus.CounterVec
	TickDuration   *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	labels := []string{"engine"}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return f.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	counter := func(name, help string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	return &Collectors{
		LoadedCells:     gauge("loaded_cells", "Cells currently loaded"),
		LiveAgents:      gauge("live_agents", "Agents in the live set"),
		ActiveAgents:    gauge("active_agents", "Live agents with the activity flag set"),
		RenderedAgents:  gauge("rendered_agents", "Live agents not render suppressed"),
		EffectiveRadius: gauge("effective_radius", "Load radius after lookahead, in cells"),
		Disabled:        gauge("engine_disabled", "1 when the engine is disabled by a config error"),

		Spawned:        counter("spawned_total", "Agents instantiated"),
		Destroyed:      counter("destroyed_total", "Agents destroyed by unload or sweep"),
		Promoted:       counter("promoted_total", "Agents promoted to visible"),
		Swept:          counter("swept_total", "Agents destroyed by the hard unload sweep"),
		DuplicateSkips: counter("duplicate_skips_total", "Instantiations skipped because the cell was already loaded"),
		TickDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one engine tick",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, labels),
	}
}

func (c *Collectors) WriteTick(e engine.TickEntry) error {
	if c == nil {
		return nil
	}
	id := e.EngineID
	c.LoadedCells.WithLabelValues(id).Set(float64(e.LoadedCells))
	c.LiveAgents.WithLabelValues(id).Set(float64(e.LiveAgents))
	c.ActiveAgents.WithLabelValues(id).Set(float64(e.ActiveAgents))
	c.RenderedAgents.WithLabelValues(id).Set(float64(e.RenderedAgents))
	c.EffectiveRadius.WithLabelValues(id).Set(float64(e.Radius))
	disabled := 0.0
	if e.Disabled {
		disabled = 1
	}
	c.Disabled.WithLabelValues(id).Set(disabled)

	c.Spawned.WithLabelValues(id).Add(float64(e.Spawned))
	c.Destroyed.WithLabelValues(id).Add(float64(e.Destroyed))
	c.Promoted.WithLabelValues(id).Add(float64(e.Promoted))
	c.Swept.WithLabelValues(id).Add(float64(e.Swept))
	c.DuplicateSkips.WithLabelValues(id).Add(float64(e.DuplicateSkipped))
	c.TickDuration.WithLabelValues(id).Observe(e.StepMS / 1000)
	return nil
}
