package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"hordestream.ai/internal/sim/engine"
	"hordestream.ai/internal/sim/spatial"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.runID.Store("run-1")
	s.ch <- req{kind: reqTick, run: "run-1", tick: engine.TickEntry{Tick: 1}}

	_ = s.WriteTick(engine.TickEntry{Tick: 2})
	_ = s.WriteTick(engine.TickEntry{Tick: 3})

	st := s.Stats()
	if st.DropTickTotal != 2 {
		t.Fatalf("DropTickTotal=%d want=2", st.DropTickTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_IgnoresTicksBeforeRun(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.runID.Store("")
	_ = s.WriteTick(engine.TickEntry{Tick: 1})
	if len(s.ch) != 0 {
		t.Fatalf("queued=%d want=0", len(s.ch))
	}
}

func TestSQLiteIndex_RecordsTicks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "horde.sqlite")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runID, err := s.StartRun(ctx, "OVERWORLD", 1337, 500)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if s.RunID() != runID {
		t.Fatalf("RunID=%q want=%q", s.RunID(), runID)
	}

	for tick := uint64(0); tick < 10; tick++ {
		e := engine.TickEntry{
			EngineID:    "OVERWORLD",
			Tick:        tick,
			Center:      spatial.Cell{X: int(tick), Y: -1},
			Radius:      1,
			LoadedCells: 9,
			LiveAgents:  int(10 + tick),
			StepMS:      0.5,
		}
		e.Spawned = 2
		e.Destroyed = 1
		if err := s.WriteTick(e); err != nil {
			t.Fatalf("write tick: %v", err)
		}
	}
	if err := s.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	rows, err := s.RecentTicks(ctx, runID, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d want=3", len(rows))
	}
	if rows[0].Tick != 9 || rows[2].Tick != 7 {
		t.Fatalf("order: first=%d last=%d", rows[0].Tick, rows[2].Tick)
	}
	if rows[0].CenterX != 9 || rows[0].CenterY != -1 || rows[0].LiveAgents != 19 {
		t.Fatalf("row mismatch: %+v", rows[0])
	}

	tot, err := s.RunTotals(ctx, runID)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if tot.Ticks != 10 || tot.Spawned != 20 || tot.Destroyed != 10 {
		t.Fatalf("totals=%+v", tot)
	}
	if tot.PeakLive != 19 || tot.PeakLoaded != 9 {
		t.Fatalf("peaks=%+v", tot)
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != runID || runs[0].Agents != 500 {
		t.Fatalf("runs=%+v", runs)
	}

	st := s.Stats()
	if st.WrittenTotal != 10 || st.DropTickTotal != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestSQLiteIndex_CloseIsIdempotent(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "a.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := s.WriteTick(engine.TickEntry{Tick: 1}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	if err := s.Sync(context.Background()); err != ErrClosed {
		t.Fatalf("sync after close=%v want=ErrClosed", err)
	}
}
