package main

import (
	"io"
	"log"
	"testing"

	"hordestream.ai/internal/sim/engine"
	"hordestream.ai/internal/sim/spatial"
	"hordestream.ai/internal/sim/stream"
	"hordestream.ai/internal/sim/worldgen"
)

func TestWalk_ScriptedPathHoldsInvariants(t *testing.T) {
	pos, err := worldgen.Generate(worldgen.Params{Mode: worldgen.ModePerSector, Seed: 11, HalfExtent: 512, SectorSize: 16, PerSectorMin: 0, PerSectorMax: 4})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	idx, _, err := spatial.Build(pos, 16, spatial.CenteredBounds(512, 16))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	eng, err := engine.New(engine.Config{
		TickRateHz:      20,
		Stream:          stream.Settings{LoadRadiusCells: 3, VisibleMarginCells: 1, LookaheadSeconds: 0.5, MaxLookaheadCells: 2},
		Workers:         3,
		SweepEveryTicks: 15,
	}, idx, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	results, err := walk(eng, walkOpts{
		TicksPerLeg:  60,
		Speed:        5,
		CircleRadius: 64,
		Teleport:     spatial.Vec3{X: -300, Z: 250},
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("legs=%d want=4", len(results))
	}
	names := []string{"straight", "diagonal", "teleport", "circle"}
	for i, r := range results {
		if r.Name != names[i] {
			t.Fatalf("leg %d name=%s want=%s", i, r.Name, names[i])
		}
	}
	if results[2].Ticks != 30 || results[2].Destroy == 0 || results[2].Spawned == 0 {
		t.Fatalf("teleport leg=%+v", results[2])
	}
}

func TestScript_LegsAreContinuous(t *testing.T) {
	legs := script(2, 10, spatial.Vec3{X: 100}, 20)
	start := spatial.Vec3{X: 5, Z: 5}
	straight := legs[0].At(start, 0)
	if straight != (spatial.Vec3{X: 7, Z: 5}) {
		t.Fatalf("straight step=%+v", straight)
	}
	circle := legs[3].At(start, 0)
	if d := circle.PlanarDistSq(start); d > 2*2+0.01 {
		t.Fatalf("circle first step jumps d2=%v", d)
	}
	if legs[2].At(start, 3) != (spatial.Vec3{X: 100}) {
		t.Fatalf("teleport target mismatch")
	}
}
