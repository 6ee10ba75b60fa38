package spatial

import (
	"errors"
	"math"

	"hordestream.ai/internal/sim/logic/mathx"
)

var (
	// ErrConfig marks an unusable index or streaming configuration.
	ErrConfig = errors.New("config error")
	// ErrNonFinite marks a spawn sample with a NaN or infinite coordinate.
	ErrNonFinite = errors.New("non-finite position")
)

// Vec3 is a world position. Y is up; the streaming grid lives on XZ.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float32) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// PlanarDistSq is the squared XZ distance.
func (v Vec3) PlanarDistSq(o Vec3) float32 {
	dx := v.X - o.X
	dz := v.Z - o.Z
	return dx*dx + dz*dz
}

func (v Vec3) PlanarLen() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Z*v.Z)))
}

func (v Vec3) Finite() bool {
	return mathx.IsFinite32(v.X) && mathx.IsFinite32(v.Y) && mathx.IsFinite32(v.Z)
}

// Cell addresses one square of the grid. Y is the world Z axis.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Chebyshev is the grid ring distance between two cells.
func (c Cell) Chebyshev(o Cell) int {
	return mathx.Chebyshev(c.X, c.Y, o.X, o.Y)
}

// CellOfPos maps a world position to its cell for the given edge length.
func CellOfPos(p Vec3, cellSize float32) Cell {
	return Cell{X: mathx.FloorCell(p.X, cellSize), Y: mathx.FloorCell(p.Z, cellSize)}
}

// Bounds is a grid bounding box in cell units.
type Bounds struct {
	Min  Cell `json:"min"`
	Size Cell `json:"size"`
}

func (b Bounds) Valid() bool { return b.Size.X > 0 && b.Size.Y > 0 }

func (b Bounds) NumCells() int {
	if !b.Valid() {
		return 0
	}
	return b.Size.X * b.Size.Y
}

func (b Bounds) Contains(c Cell) bool {
	x := c.X - b.Min.X
	y := c.Y - b.Min.Y
	return x >= 0 && y >= 0 && x < b.Size.X && y < b.Size.Y
}

// Flat returns the row-major index of c.
func (b Bounds) Flat(c Cell) (int, bool) {
	if !b.Contains(c) {
		return 0, false
	}
	return (c.X - b.Min.X) + (c.Y-b.Min.Y)*b.Size.X, true
}

func (b Bounds) CellAt(k int) Cell {
	return Cell{X: b.Min.X + k%b.Size.X, Y: b.Min.Y + k/b.Size.X}
}

// Max is the inclusive upper corner.
func (b Bounds) Max() Cell {
	return Cell{X: b.Min.X + b.Size.X - 1, Y: b.Min.Y + b.Size.Y - 1}
}
