package spatial

import "fmt"

// Index is the immutable cell-bucketed spawn table. It is safe for
// concurrent readers once built.
type Index struct {
	bounds    Bounds
	cellSize  float32
	cellStart []int32
	cellLen   []int32
	positions []Vec3
}

func (x *Index) Bounds() Bounds       { return x.bounds }
func (x *Index) CellSize() float32    { return x.cellSize }
func (x *Index) Len() int             { return len(x.positions) }
func (x *Index) Contains(c Cell) bool { return x.bounds.Contains(c) }

func (x *Index) CellOf(p Vec3) Cell {
	return CellOfPos(p, x.cellSize)
}

// Slice returns the stored spawn points of c. The result aliases the index
// and must not be modified. Out-of-bounds cells yield nil.
func (x *Index) Slice(c Cell) []Vec3 {
	k, ok := x.bounds.Flat(c)
	if !ok {
		return nil
	}
	s := int(x.cellStart[k])
	return x.positions[s : s+int(x.cellLen[k]) : s+int(x.cellLen[k])]
}

// SlotRange returns the [start,start+n) slot range of c.
func (x *Index) SlotRange(c Cell) (start, n int, ok bool) {
	k, ok := x.bounds.Flat(c)
	if !ok {
		return 0, 0, false
	}
	return int(x.cellStart[k]), int(x.cellLen[k]), true
}

func (x *Index) CellLen(c Cell) int {
	k, ok := x.bounds.Flat(c)
	if !ok {
		return 0
	}
	return int(x.cellLen[k])
}

// Parts exposes the flat arrays for persistence. Callers must not modify them.
func (x *Index) Parts() (start, lens []int32, positions []Vec3) {
	return x.cellStart, x.cellLen, x.positions
}

// FromParts reassembles an index from persisted arrays.
func FromParts(bounds Bounds, cellSize float32, start, lens []int32, positions []Vec3) (*Index, error) {
	if !bounds.Valid() || !(cellSize > 0) {
		return nil, fmt.Errorf("%w: bounds=%+v cell_size=%v", ErrConfig, bounds, cellSize)
	}
	x := &Index{bounds: bounds, cellSize: cellSize, cellStart: start, cellLen: lens, positions: positions}
	if err := x.Validate(); err != nil {
		return nil, err
	}
	return x, nil
}

// Validate checks the grouping invariant: cells are contiguous in row-major
// order, their lengths sum to the position count, and every position lies in
// the cell that owns its slot.
func (x *Index) Validate() error {
	n := x.bounds.NumCells()
	if len(x.cellStart) != n || len(x.cellLen) != n {
		return fmt.Errorf("index: cell arrays len=%d/%d want=%d", len(x.cellStart), len(x.cellLen), n)
	}
	var cursor int32
	for k := 0; k < n; k++ {
		if x.cellStart[k] != cursor {
			return fmt.Errorf("index: cell %d start=%d want=%d", k, x.cellStart[k], cursor)
		}
		if x.cellLen[k] < 0 {
			return fmt.Errorf("index: cell %d negative len", k)
		}
		cursor += x.cellLen[k]
	}
	if int(cursor) != len(x.positions) {
		return fmt.Errorf("index: sum(len)=%d positions=%d", cursor, len(x.positions))
	}
	for k := 0; k < n; k++ {
		want := x.bounds.CellAt(k)
		s := int(x.cellStart[k])
		for _, p := range x.positions[s : s+int(x.cellLen[k])] {
			if got := x.CellOf(p); got != want {
				return fmt.Errorf("index: position %+v in cell %+v stored under %+v", p, got, want)
			}
		}
	}
	return nil
}
