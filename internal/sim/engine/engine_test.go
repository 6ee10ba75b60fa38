package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math/rand"
	"strings"
	"testing"
	"time"

	"hordestream.ai/internal/observerproto"
	"hordestream.ai/internal/sim/population"
	"hordestream.ai/internal/sim/spatial"
	"hordestream.ai/internal/sim/stream"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func grid3x3Index(t *testing.T) *spatial.Index {
	t.Helper()
	var pos []spatial.Vec3
	for y := -1; y <= 1; y++ {
		for x := -1; x <= 1; x++ {
			pos = append(pos, spatial.Vec3{X: float32(x)*32 + 16, Z: float32(y)*32 + 16})
		}
	}
	idx, _, err := spatial.Build(pos, 32, spatial.Bounds{Min: spatial.Cell{X: -1, Y: -1}, Size: spatial.Cell{X: 3, Y: 3}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return idx
}

type recordingLogger struct{ entries []TickEntry }

func (r *recordingLogger) WriteTick(e TickEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func TestEngine_ThreeByThreeScenario(t *testing.T) {
	e, err := New(Config{Stream: stream.Settings{LoadRadiusCells: 1}, Workers: 2}, grid3x3Index(t), quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	r := e.StepOnce(spatial.Vec3{}, 0)
	if r.Apply.Spawned != 9 || e.Metrics().LiveAgents != 9 || e.Metrics().LoadedCells != 9 {
		t.Fatalf("tick0 spawned=%d metrics=%+v", r.Apply.Spawned, e.Metrics())
	}
	r = e.StepOnce(spatial.Vec3{X: 48, Z: 16}, 0.1)
	if len(r.Delta.Unload) != 3 || len(r.Delta.Load) != 0 {
		t.Fatalf("unload=%d load=%d want=3/0", len(r.Delta.Unload), len(r.Delta.Load))
	}
	if r.Apply.Destroyed != 3 || e.Metrics().LiveAgents != 6 {
		t.Fatalf("destroyed=%d live=%d want=3/6", r.Apply.Destroyed, e.Metrics().LiveAgents)
	}
	for y := -1; y <= 1; y++ {
		if e.IsCellLoaded(spatial.Cell{X: -1, Y: y}) {
			t.Fatalf("cell (-1,%d) still loaded", y)
		}
		if !e.IsCellLoaded(spatial.Cell{X: 0, Y: y}) {
			t.Fatalf("cell (0,%d) not loaded", y)
		}
	}
	if m := e.Metrics(); m.Tick != 2 || m.Totals.Spawned != 9 || m.Totals.Destroyed != 3 {
		t.Fatalf("metrics=%+v", m)
	}
}

func TestEngine_ConfigErrorDisables(t *testing.T) {
	var buf bytes.Buffer
	e, err := New(Config{ID: "W1", Stream: stream.Settings{LoadRadiusCells: 0}}, grid3x3Index(t), log.New(&buf, "", 0))
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err=%v want ErrConfig", err)
	}
	if e == nil || !e.Disabled() {
		t.Fatalf("engine should be returned disabled")
	}
	if !strings.Contains(buf.String(), "engine W1 disabled") {
		t.Fatalf("missing diagnostic, log=%q", buf.String())
	}
	for i := 0; i < 3; i++ {
		r := e.StepOnce(spatial.Vec3{}, 0.1)
		if !r.Disabled || r.LiveAgents != 0 {
			t.Fatalf("disabled tick did work: %+v", r)
		}
	}
	m := e.Metrics()
	if !m.Disabled || m.Tick != 3 || m.LiveAgents != 0 {
		t.Fatalf("metrics=%+v", m)
	}
	if e.IsCellLoaded(spatial.Cell{}) {
		t.Fatalf("disabled engine reports loaded cell")
	}
	if _, err := e.RequestCellLoaded(context.Background(), spatial.Cell{}); err == nil {
		t.Fatalf("expected error from disabled query")
	}
}

func TestEngine_NilIndexAndBadCulling(t *testing.T) {
	if _, err := New(Config{Stream: stream.Settings{LoadRadiusCells: 1}}, nil, quietLogger()); !errors.Is(err, ErrConfig) {
		t.Fatalf("nil index err=%v", err)
	}
	cfg := Config{Stream: stream.Settings{LoadRadiusCells: 1}, Culling: CullingConfig{Near: 40, Far: 30}}
	if _, err := New(cfg, grid3x3Index(t), quietLogger()); !errors.Is(err, ErrConfig) {
		t.Fatalf("bad culling err=%v", err)
	}
}

func TestEngine_TickLogBalances(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var pos []spatial.Vec3
	for i := 0; i < 4000; i++ {
		pos = append(pos, spatial.Vec3{X: rng.Float32()*400 - 200, Z: rng.Float32()*400 - 200})
	}
	idx, _, err := spatial.Build(pos, 16, spatial.CenteredBounds(200, 16))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	rec := &recordingLogger{}
	e, err := New(Config{
		Stream:          stream.Settings{LoadRadiusCells: 3, VisibleMarginCells: 1, LookaheadSeconds: 0.5},
		Workers:         4,
		SweepEveryTicks: 10,
	}, idx, quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	e.SetTickLogger(MultiTickLogger{rec, nil})

	obs := spatial.Vec3{}
	for i := 0; i < 300; i++ {
		obs.X += rng.Float32()*40 - 20
		obs.Z += rng.Float32()*40 - 20
		e.StepOnce(obs, 0.1)

		center, radius, ok := e.Window()
		if !ok {
			t.Fatalf("not tracking")
		}
		want := 0
		cells := 0
		for y := center.Y - radius; y <= center.Y+radius; y++ {
			for x := center.X - radius; x <= center.X+radius; x++ {
				c := spatial.Cell{X: x, Y: y}
				if !idx.Contains(c) {
					continue
				}
				cells++
				want += idx.CellLen(c)
				if !e.IsCellLoaded(c) {
					t.Fatalf("tick %d: cell %+v not loaded", i, c)
				}
			}
		}
		if e.Store().Len() != want || e.Store().LoadedCellCount() != cells {
			t.Fatalf("tick %d: live=%d cells=%d want=%d/%d", i, e.Store().Len(), e.Store().LoadedCellCount(), want, cells)
		}
	}

	prev := 0
	for _, entry := range rec.entries {
		if entry.LiveAgents != prev+entry.Spawned-entry.Destroyed {
			t.Fatalf("tick %d: live=%d prev=%d spawned=%d destroyed=%d", entry.Tick, entry.LiveAgents, prev, entry.Spawned, entry.Destroyed)
		}
		if entry.DuplicateSkipped != 0 || entry.Swept != 0 {
			t.Fatalf("tick %d: dup=%d swept=%d", entry.Tick, entry.DuplicateSkipped, entry.Swept)
		}
		prev = entry.LiveAgents
	}
	if len(rec.entries) != 300 {
		t.Fatalf("entries=%d want=300", len(rec.entries))
	}
}

func TestEngine_RunServesQueriesAndFeed(t *testing.T) {
	e, err := New(Config{TickRateHz: 200, Stream: stream.Settings{LoadRadiusCells: 1}}, grid3x3Index(t), quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	feed := make(chan []byte, 4)
	if !e.Subscribe("S1", feed) {
		t.Fatalf("subscribe rejected")
	}
	e.SetObserver(spatial.Vec3{X: 48, Z: 16})

	var msg observerproto.TickMsg
	deadline := time.After(3 * time.Second)
	for msg.LiveAgents != 6 {
		select {
		case b := <-feed:
			if err := json.Unmarshal(b, &msg); err != nil {
				t.Fatalf("decode tick: %v", err)
			}
			if msg.Type != observerproto.TypeTick {
				t.Fatalf("type=%q", msg.Type)
			}
		case <-deadline:
			t.Fatalf("never saw 6 live agents, last=%+v", msg)
		}
	}

	loaded, err := e.RequestCellLoaded(ctx, spatial.Cell{X: -1, Y: 0})
	if err != nil || loaded {
		t.Fatalf("cell (-1,0) loaded=%v err=%v", loaded, err)
	}
	loaded, err = e.RequestCellLoaded(ctx, spatial.Cell{X: 1, Y: 0})
	if err != nil || !loaded {
		t.Fatalf("cell (1,0) loaded=%v err=%v", loaded, err)
	}
	if _, found, err := e.RequestAgentActive(ctx, population.AgentID(999999)); err != nil || found {
		t.Fatalf("unknown agent found=%v err=%v", found, err)
	}
	snap, err := e.RequestSnapshot(ctx, 2)
	if err != nil || len(snap.Agents) != 2 || !snap.Limited || snap.Total != 6 {
		t.Fatalf("snapshot=%+v err=%v", snap, err)
	}
	if _, found, err := e.RequestAgentActive(ctx, snap.Agents[0].ID); err != nil || !found {
		t.Fatalf("live agent found=%v err=%v", found, err)
	}

	e.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}
