// Package worldgen produces the procedural spawn positions that seed the
// spatial index. Output depends only on Params.
package worldgen

import (
	"fmt"

	opensimplex "github.com/ojrac/opensimplex-go"

	"hordestream.ai/internal/sim/logic/mathx"
	"hordestream.ai/internal/sim/spatial"
)

const (
	ModeNoise     = "noise"
	ModePerSector = "per_sector"

	maxAttemptsPerAgent = 8
)

type Params struct {
	Mode       string  `json:"mode"`
	Seed       int64   `json:"seed"`
	Count      int     `json:"count"`
	HalfExtent float32 `json:"half_extent"`

	// Noise mode.
	DensityScale float64 `json:"density_scale"`
	Threshold    float64 `json:"threshold"`
	Octaves      int     `json:"octaves"`

	// Per-sector mode.
	SectorSize   float32 `json:"sector_size"`
	PerSectorMin int     `json:"per_sector_min"`
	PerSectorMax int     `json:"per_sector_max"`
}

func (p Params) Validate() error {
	if !(p.HalfExtent > 0) {
		return fmt.Errorf("worldgen: half_extent must be > 0")
	}
	switch p.Mode {
	case ModeNoise, "":
		if p.Count < 0 {
			return fmt.Errorf("worldgen: count must be >= 0")
		}
	case ModePerSector:
		if !(p.SectorSize > 0) {
			return fmt.Errorf("worldgen: sector_size must be > 0")
		}
		if p.PerSectorMin < 0 || p.PerSectorMax < p.PerSectorMin {
			return fmt.Errorf("worldgen: per_sector range [%d,%d] invalid", p.PerSectorMin, p.PerSectorMax)
		}
	default:
		return fmt.Errorf("worldgen: unknown mode %q", p.Mode)
	}
	return nil
}

// Generate returns the spawn positions for p.
func Generate(p Params) ([]spatial.Vec3, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Mode == ModePerSector {
		return perSector(p), nil
	}
	return noiseField(p), nil
}

// noiseField rejection-samples uniform candidates against a simplex density.
func noiseField(p Params) []spatial.Vec3 {
	octaves := p.Octaves
	if octaves <= 0 {
		octaves = 3
	}
	noise := opensimplex.NewNormalized(p.Seed)
	h := float64(p.HalfExtent)
	out := make([]spatial.Vec3, 0, p.Count)
	attempts := p.Count * maxAttemptsPerAgent
	for i := 0; i < attempts && len(out) < p.Count; i++ {
		x := mathx.Range(mathx.Hash2(p.Seed, i, 0), -h, h)
		z := mathx.Range(mathx.Hash2(p.Seed, i, 1), -h, h)
		if p.Threshold > 0 && octaveNoise(noise, x, z, octaves, p.DensityScale, 0.5) < p.Threshold {
			continue
		}
		out = append(out, spatial.Vec3{X: float32(x), Z: float32(z)})
	}
	return out
}

// perSector places a hashed count in [min,max] uniformly inside each sector.
func perSector(p Params) []spatial.Vec3 {
	b := spatial.CenteredBounds(p.HalfExtent, p.SectorSize)
	span := p.PerSectorMax - p.PerSectorMin + 1
	var out []spatial.Vec3
	for k := 0; k < b.NumCells(); k++ {
		c := b.CellAt(k)
		n := p.PerSectorMin + int(mathx.Hash2(p.Seed, c.X, c.Y)%uint64(span))
		ox := float64(c.X) * float64(p.SectorSize)
		oz := float64(c.Y) * float64(p.SectorSize)
		for j := 0; j < n; j++ {
			x := ox + mathx.Range(mathx.Hash3(p.Seed, c.X, c.Y, 2*j), 0, float64(p.SectorSize))
			z := oz + mathx.Range(mathx.Hash3(p.Seed, c.X, c.Y, 2*j+1), 0, float64(p.SectorSize))
			out = append(out, spatial.Vec3{X: float32(x), Z: float32(z)})
		}
	}
	return out
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
