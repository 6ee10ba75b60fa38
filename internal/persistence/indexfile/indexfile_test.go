package indexfile

import (
	"os"
	"path/filepath"
	"testing"

	"hordestream.ai/internal/sim/spatial"
	"hordestream.ai/internal/sim/worldgen"
)

func TestWriteRead(t *testing.T) {
	pos, err := worldgen.Generate(worldgen.Params{Seed: 5, Count: 3000, HalfExtent: 256})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	idx, _, err := spatial.Build(pos, 32, spatial.CenteredBounds(256, 32))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	path := filepath.Join(t.TempDir(), "cache", "index.bin.zst")
	if err := Write(path, idx, Header{Seed: 5, Count: 3000}); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if !h.Matches(Header{Format: Format, Version: Version, Seed: 5, Count: 3000, CellSize: 32}) {
		t.Fatalf("header=%+v", h)
	}
	if h.Matches(Header{Format: Format, Version: Version, Seed: 6, Count: 3000, CellSize: 32}) {
		t.Fatalf("different seed matched")
	}

	got, gh, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if gh.Agents != idx.Len() || got.Len() != idx.Len() || got.Bounds() != idx.Bounds() {
		t.Fatalf("len=%d/%d bounds=%+v", got.Len(), idx.Len(), got.Bounds())
	}
	c := spatial.Cell{X: 1, Y: -2}
	a, b := idx.Slice(c), got.Slice(c)
	if len(a) != len(b) {
		t.Fatalf("cell len %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("slot %d differs", i)
		}
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("tmp file left behind")
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zst")
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := Read(path); err == nil {
		t.Fatalf("expected error")
	}
}
