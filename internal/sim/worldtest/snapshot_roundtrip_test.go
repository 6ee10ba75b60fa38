package worldtest

import (
	"path/filepath"
	"testing"

	"hordestream.ai/internal/persistence/snapshot"
	"hordestream.ai/internal/sim/engine"
	"hordestream.ai/internal/sim/spatial"
	"hordestream.ai/internal/sim/stream"
)

func TestSnapshot_RoundTripPassesOracle(t *testing.T) {
	idx := RandomIndex(t, 12, 5000, 256, 16)
	h := NewHarness(t, engine.Config{ID: "W", Stream: stream.Settings{LoadRadiusCells: 3, VisibleMarginCells: 1}, Workers: 2}, idx)
	h.Walk(RandomWalk(3, spatial.Vec3{}, 50, 10))

	snap, err := snapshot.FromEngine(h.E.Snapshot(0), "W", 12, "abc")
	if err != nil {
		t.Fatalf("from engine: %v", err)
	}
	path := filepath.Join(t.TempDir(), "snapshots", snapshot.FileName(snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header != snap.Header || got.Header.Tick != 50 {
		t.Fatalf("header=%+v want=%+v", got.Header, snap.Header)
	}
	if len(got.Agents) != h.E.Store().Len() || len(got.Cells) != h.E.Store().LoadedCellCount() {
		t.Fatalf("agents=%d cells=%d", len(got.Agents), len(got.Cells))
	}
	if err := Check(idx, ViewOfSnapshot(got)); err != nil {
		t.Fatalf("oracle: %v", err)
	}

	// A snapshot taken at a different center fails the oracle.
	got.Center.X += 5
	if err := Check(idx, ViewOfSnapshot(got)); err == nil {
		t.Fatalf("shifted snapshot passed the oracle")
	}
}

func TestSnapshot_RejectsTruncated(t *testing.T) {
	idx := RandomIndex(t, 13, 2000, 128, 16)
	h := NewHarness(t, engine.Config{Stream: stream.Settings{LoadRadiusCells: 2}}, idx)
	h.Step(spatial.Vec3{})
	if h.E.Store().Len() < 2 {
		t.Fatalf("live=%d too small for the test", h.E.Store().Len())
	}
	if _, err := snapshot.FromEngine(h.E.Snapshot(1), "x", 0, ""); err == nil {
		t.Fatalf("truncated snapshot accepted")
	}
}
