package worldgen

import (
	"testing"

	"hordestream.ai/internal/sim/spatial"
)

func TestNoiseFieldDeterministic(t *testing.T) {
	p := Params{Mode: ModeNoise, Seed: 9, Count: 2000, HalfExtent: 500, DensityScale: 0.01, Threshold: 0.4}
	a, err := Generate(p)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, _ := Generate(p)
	if len(a) != len(b) || len(a) == 0 {
		t.Fatalf("len a=%d b=%d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("position %d differs: %+v vs %+v", i, a[i], b[i])
		}
		if a[i].X < -500 || a[i].X > 500 || a[i].Z < -500 || a[i].Z > 500 {
			t.Fatalf("position %d outside extent: %+v", i, a[i])
		}
	}
	if len(a) > p.Count {
		t.Fatalf("generated %d > count %d", len(a), p.Count)
	}
	p.Seed = 10
	c, _ := Generate(p)
	if len(c) > 0 && c[0] == a[0] {
		t.Fatalf("seed did not change placement")
	}
}

func TestNoThresholdFillsCount(t *testing.T) {
	out, err := Generate(Params{Seed: 1, Count: 300, HalfExtent: 100})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(out) != 300 {
		t.Fatalf("len=%d want=300", len(out))
	}
}

func TestPerSectorCounts(t *testing.T) {
	p := Params{Mode: ModePerSector, Seed: 4, HalfExtent: 64, SectorSize: 32, PerSectorMin: 10, PerSectorMax: 20}
	out, err := Generate(p)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b := spatial.CenteredBounds(64, 32)
	idx, stats, err := spatial.Build(out, 32, b)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if stats.OutOfBounds != 0 || stats.NonFinite != 0 {
		t.Fatalf("stats=%+v", stats)
	}
	for k := 0; k < b.NumCells(); k++ {
		n := idx.CellLen(b.CellAt(k))
		if n < 10 || n > 20 {
			t.Fatalf("cell %+v has %d agents", b.CellAt(k), n)
		}
	}
}

func TestValidate(t *testing.T) {
	bad := []Params{
		{HalfExtent: 0, Count: 1},
		{HalfExtent: 10, Count: -1},
		{Mode: ModePerSector, HalfExtent: 10},
		{Mode: ModePerSector, HalfExtent: 10, SectorSize: 5, PerSectorMin: 5, PerSectorMax: 2},
		{Mode: "spiral", HalfExtent: 10},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
