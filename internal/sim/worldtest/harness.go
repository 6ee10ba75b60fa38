package worldtest

import (
	"io"
	"log"
	"math/rand"
	"testing"

	"hordestream.ai/internal/sim/engine"
	"hordestream.ai/internal/sim/spatial"
)

// Harness drives an engine through exported APIs only:
//   - Step/Walk feed observer samples via StepOnce
//   - every step is checked against the brute-force oracle
//
// It stays outside the engine package so tests can import it anywhere.
type Harness struct {
	T   testing.TB
	Idx *spatial.Index
	E   *engine.Engine
	Dt  float64

	Reports []engine.TickReport
}

func NewHarness(t testing.TB, cfg engine.Config, idx *spatial.Index) *Harness {
	t.Helper()
	e, err := engine.New(cfg, idx, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return &Harness{T: t, Idx: idx, E: e, Dt: 1.0 / float64(e.TickRateHz())}
}

// Step advances one tick and checks the live set.
func (h *Harness) Step(observer spatial.Vec3) engine.TickReport {
	h.T.Helper()
	r := h.E.StepOnce(observer, h.Dt)
	h.Reports = append(h.Reports, r)
	h.AssertLiveSet()
	return r
}

func (h *Harness) Walk(path []spatial.Vec3) {
	h.T.Helper()
	for _, p := range path {
		h.Step(p)
	}
}

func (h *Harness) AssertLiveSet() {
	h.T.Helper()
	center, radius, ok := h.E.Window()
	if !ok {
		h.T.Fatalf("tick %d: controller not tracking", h.E.CurrentTick())
	}
	if err := Check(h.Idx, ViewOfStore(h.E.Store(), center, radius)); err != nil {
		h.T.Fatalf("tick %d: %v", h.E.CurrentTick(), err)
	}
}

// RandomIndex scatters n agents uniformly over [-half, half] with a fixed seed.
func RandomIndex(t testing.TB, seed int64, n int, half, cellSize float32) *spatial.Index {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	pos := make([]spatial.Vec3, n)
	for i := range pos {
		pos[i] = spatial.Vec3{X: (rng.Float32()*2 - 1) * half, Z: (rng.Float32()*2 - 1) * half}
	}
	idx, _, err := spatial.Build(pos, cellSize, spatial.CenteredBounds(half, cellSize))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return idx
}

// RandomWalk returns a seeded path of n steps of at most step units per axis.
func RandomWalk(seed int64, start spatial.Vec3, n int, step float32) []spatial.Vec3 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]spatial.Vec3, n)
	p := start
	for i := range out {
		p.X += (rng.Float32()*2 - 1) * step
		p.Z += (rng.Float32()*2 - 1) * step
		out[i] = p
	}
	return out
}
