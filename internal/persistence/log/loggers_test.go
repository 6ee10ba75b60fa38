package log

import (
	"path/filepath"
	"testing"
	"time"

	"hordestream.ai/internal/sim/engine"
)

func TestTickLoggerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for i := 0; i < 5; i++ {
		if err := l.WriteTick(engine.TickEntry{Tick: uint64(i), LiveAgents: i * 10}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := TickFiles(dir)
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	var got []engine.TickEntry
	if err := ReadTicks(files[0], func(e engine.TickEntry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 5 || got[4].Tick != 4 || got[4].LiveAgents != 40 {
		t.Fatalf("entries=%+v", got)
	}
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(filepath.Join(dir, "ticks"), "ticks")
	now := time.Date(2026, 1, 2, 3, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	if err := w.Write(map[string]int{"a": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"a": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, err := TickFiles(dir)
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v want 2", files)
	}
}

func TestWriterReportsClosedSegments(t *testing.T) {
	dir := t.TempDir()
	var closed []string
	w := NewJSONLZstdWriterWithOptions(filepath.Join(dir, "ticks"), "ticks", LoggerOptions{
		RotateLayout: "2006-01-02-15-04",
		OnClose:      func(p string) { closed = append(closed, filepath.Base(p)) },
	})
	now := time.Date(2026, 1, 2, 3, 4, 30, 0, time.UTC)
	w.now = func() time.Time { return now }
	for i := 0; i < 3; i++ {
		if err := w.Write(map[string]int{"i": i}); err != nil {
			t.Fatalf("write: %v", err)
		}
		now = now.Add(time.Minute)
	}
	if len(closed) != 2 {
		t.Fatalf("closed=%v want 2 before Close", closed)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	want := []string{"ticks-2026-01-02-03-04.jsonl.zst", "ticks-2026-01-02-03-05.jsonl.zst", "ticks-2026-01-02-03-06.jsonl.zst"}
	if len(closed) != len(want) {
		t.Fatalf("closed=%v want=%v", closed, want)
	}
	for i := range want {
		if closed[i] != want[i] {
			t.Fatalf("closed[%d]=%s want=%s", i, closed[i], want[i])
		}
	}
	// A second Close reports nothing new.
	if err := w.Close(); err != nil || len(closed) != 3 {
		t.Fatalf("closed=%v err=%v", closed, err)
	}
}
