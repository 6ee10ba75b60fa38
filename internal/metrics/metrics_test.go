package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"hordestream.ai/internal/sim/engine"
)

func TestCollectorsWriteTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	e := engine.TickEntry{EngineID: "OVERWORLD", Radius: 3, LoadedCells: 49, LiveAgents: 120, ActiveAgents: 80, RenderedAgents: 70, StepMS: 2}
	e.Spawned = 120
	e.Promoted = 4
	if err := c.WriteTick(e); err != nil {
		t.Fatalf("write: %v", err)
	}
	e.Spawned = 5
	e.Destroyed = 7
	e.LiveAgents = 118
	_ = c.WriteTick(e)

	if got := testutil.ToFloat64(c.LiveAgents.WithLabelValues("OVERWORLD")); got != 118 {
		t.Fatalf("live_agents=%v want=118", got)
	}
	if got := testutil.ToFloat64(c.Spawned.WithLabelValues("OVERWORLD")); got != 125 {
		t.Fatalf("spawned_total=%v want=125", got)
	}
	if got := testutil.ToFloat64(c.Destroyed.WithLabelValues("OVERWORLD")); got != 7 {
		t.Fatalf("destroyed_total=%v want=7", got)
	}
	if got := testutil.ToFloat64(c.EffectiveRadius.WithLabelValues("OVERWORLD")); got != 3 {
		t.Fatalf("effective_radius=%v want=3", got)
	}
	if got := testutil.ToFloat64(c.Disabled.WithLabelValues("OVERWORLD")); got != 0 {
		t.Fatalf("engine_disabled=%v want=0", got)
	}
	if n := testutil.CollectAndCount(c.TickDuration); n != 1 {
		t.Fatalf("tick_duration series=%d want=1", n)
	}
}

func TestCollectorsDisabledEngine(t *testing.T) {
	c := New(prometheus.NewRegistry())
	_ = c.WriteTick(engine.TickEntry{EngineID: "X", Disabled: true})
	if got := testutil.ToFloat64(c.Disabled.WithLabelValues("X")); got != 1 {
		t.Fatalf("engine_disabled=%v want=1", got)
	}
}
