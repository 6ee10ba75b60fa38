package engine

import "hordestream.ai/internal/sim/spatial"

// Metrics is a thread-safe read-only view of key engine runtime signals.
// It is updated from the engine loop goroutine and read from HTTP handlers/tests.
type Metrics struct {
	Tick     uint64 `json:"tick"`
	Disabled bool   `json:"disabled"`

	Center          spatial.Cell `json:"center"`
	EffectiveRadius int          `json:"effective_radius"`
	VisibleRadius   int          `json:"visible_radius"`

	LoadedCells    int `json:"loaded_cells"`
	LiveAgents     int `json:"live_agents"`
	ActiveAgents   int `json:"active_agents"`
	RenderedAgents int `json:"rendered_agents"`
	IndexedAgents  int `json:"indexed_agents"`

	LastTick TickCounts `json:"last_tick"`
	Totals   Totals     `json:"totals"`

	StepMS float64 `json:"step_ms"`
}

// TickCounts are the per-tick mutation counts.
type TickCounts struct {
	LoadCells        int `json:"load_cells"`
	UnloadCells      int `json:"unload_cells"`
	PromoteCells     int `json:"promote_cells"`
	Spawned          int `json:"spawned"`
	Destroyed        int `json:"destroyed"`
	Promoted         int `json:"promoted"`
	DuplicateSkipped int `json:"duplicate_skipped"`
	Swept            int `json:"swept"`
	GateEvaluated    int `json:"gate_evaluated"`
}

type Totals struct {
	Spawned   uint64 `json:"spawned"`
	Destroyed uint64 `json:"destroyed"`
	Promoted  uint64 `json:"promoted"`
	Swept     uint64 `json:"swept"`
}

func (e *Engine) Metrics() Metrics {
	if e == nil {
		return Metrics{}
	}
	v := e.metrics.Load()
	if v == nil {
		return Metrics{}
	}
	m, ok := v.(Metrics)
	if !ok {
		return Metrics{}
	}
	return m
}

func (e *Engine) publishMetrics(r TickReport, nextTick uint64) {
	m := Metrics{
		Tick:            nextTick,
		Disabled:        e.disabled != nil,
		Center:          r.Delta.Center,
		EffectiveRadius: r.Delta.Radius,
		VisibleRadius:   r.Delta.Visible,
		LoadedCells:     r.LoadedCells,
		LiveAgents:      r.LiveAgents,
		ActiveAgents:    r.ActiveAgents,
		RenderedAgents:  r.RenderedAgents,
		LastTick:        r.Counts(),
		Totals:          e.totals,
		StepMS:          r.StepMS,
	}
	if e.idx != nil {
		m.IndexedAgents = e.idx.Len()
	}
	e.metrics.Store(m)
}
