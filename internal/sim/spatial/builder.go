package spatial

import (
	"fmt"
	"math"

	"hordestream.ai/internal/sim/logic/mathx"
)

type BuildStats struct {
	Input       int `json:"input"`
	Indexed     int `json:"indexed"`
	OutOfBounds int `json:"out_of_bounds"`
	NonFinite   int `json:"non_finite"`
}

// Build buckets positions into bounds with a two-pass counting sort.
// Out-of-bounds and non-finite samples are dropped and counted; only an
// unusable cell size or empty bounds is an error.
func Build(positions []Vec3, cellSize float32, bounds Bounds) (*Index, BuildStats, error) {
	stats := BuildStats{Input: len(positions)}
	if !mathx.IsFinite32(cellSize) || cellSize <= 0 {
		return nil, stats, fmt.Errorf("%w: cell size %v", ErrConfig, cellSize)
	}
	if !bounds.Valid() {
		return nil, stats, fmt.Errorf("%w: bounds size %+v", ErrConfig, bounds.Size)
	}
	if bounds.NumCells() > math.MaxInt32 || len(positions) > math.MaxInt32 {
		return nil, stats, fmt.Errorf("%w: index too large", ErrConfig)
	}

	n := bounds.NumCells()
	cellLen := make([]int32, n)
	// Flat cell per input, -1 when dropped.
	slot := make([]int32, len(positions))
	for i, p := range positions {
		if !p.Finite() {
			slot[i] = -1
			stats.NonFinite++
			continue
		}
		k, ok := bounds.Flat(CellOfPos(p, cellSize))
		if !ok {
			slot[i] = -1
			stats.OutOfBounds++
			continue
		}
		slot[i] = int32(k)
		cellLen[k]++
	}

	cellStart := make([]int32, n)
	var sum int32
	for k := 0; k < n; k++ {
		cellStart[k] = sum
		sum += cellLen[k]
	}

	out := make([]Vec3, sum)
	cursor := make([]int32, n)
	copy(cursor, cellStart)
	for i, k := range slot {
		if k < 0 {
			continue
		}
		out[cursor[k]] = positions[i]
		cursor[k]++
	}
	stats.Indexed = int(sum)

	return &Index{
		bounds:    bounds,
		cellSize:  cellSize,
		cellStart: cellStart,
		cellLen:   cellLen,
		positions: out,
	}, stats, nil
}

// BoundsFor returns the tightest bounds covering every finite position.
func BoundsFor(positions []Vec3, cellSize float32) Bounds {
	if !(cellSize > 0) {
		return Bounds{}
	}
	first := true
	var lo, hi Cell
	for _, p := range positions {
		if !p.Finite() {
			continue
		}
		c := CellOfPos(p, cellSize)
		if first {
			lo, hi = c, c
			first = false
			continue
		}
		lo.X = mathx.MinInt(lo.X, c.X)
		lo.Y = mathx.MinInt(lo.Y, c.Y)
		hi.X = mathx.MaxInt(hi.X, c.X)
		hi.Y = mathx.MaxInt(hi.Y, c.Y)
	}
	if first {
		return Bounds{}
	}
	return Bounds{Min: lo, Size: Cell{X: hi.X - lo.X + 1, Y: hi.Y - lo.Y + 1}}
}

// CenteredBounds covers [-halfExtent, halfExtent] on both planar axes.
func CenteredBounds(halfExtent, cellSize float32) Bounds {
	lo := mathx.FloorCell(-halfExtent, cellSize)
	hi := mathx.FloorCell(halfExtent, cellSize)
	return Bounds{Min: Cell{X: lo, Y: lo}, Size: Cell{X: hi - lo + 1, Y: hi - lo + 1}}
}
