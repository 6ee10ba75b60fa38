package stream

import (
	"fmt"
	"math"

	"hordestream.ai/internal/sim/logic/mathx"
	"hordestream.ai/internal/sim/spatial"
)

// Uninitialized is the LastCenterCell sentinel of a controller that has not
// produced its first window yet.
var Uninitialized = spatial.Cell{X: math.MinInt32, Y: math.MinInt32}

// State is the window the live set matches. LastCenterPos is the sample that
// entered LastCenterCell; Dwell is the time spent in that cell since.
type State struct {
	LastCenterCell spatial.Cell
	LastCenterPos  spatial.Vec3
	LastRadius     int
	Dwell          float64
}

func (s State) Tracking() bool { return s.LastCenterCell != Uninitialized }

// Delta is the cell work for one tick. Every cell lies inside the index bounds
// and appears in at most one list.
type Delta struct {
	Center  spatial.Cell
	Radius  int
	Visible int
	Full    bool

	Unload  []spatial.Cell
	Load    []spatial.Cell
	Promote []spatial.Cell
}

func (d Delta) Empty() bool {
	return len(d.Unload) == 0 && len(d.Load) == 0 && len(d.Promote) == 0
}

// Controller tracks the observer cell and emits load window changes.
// It is not safe for concurrent use; the engine calls it once per tick.
type Controller struct {
	idx      *spatial.Index
	bounds   spatial.Bounds
	cellSize float32
	settings Settings
	state    State

	seen    map[spatial.Cell]struct{}
	touched []spatial.Cell
}

func NewController(idx *spatial.Index, settings Settings) (*Controller, error) {
	if idx == nil {
		return nil, fmt.Errorf("%w: nil index", spatial.ErrConfig)
	}
	if err := settings.Validate(idx.CellSize()); err != nil {
		return nil, err
	}
	return &Controller{
		idx:      idx,
		bounds:   idx.Bounds(),
		cellSize: idx.CellSize(),
		settings: settings,
		state:    State{LastCenterCell: Uninitialized},
		seen:     map[spatial.Cell]struct{}{},
	}, nil
}

func (c *Controller) Settings() Settings { return c.settings }
func (c *Controller) State() State       { return c.state }

func (c *Controller) Reset() {
	c.state = State{LastCenterCell: Uninitialized}
}

// Window reports the load window the live set should currently match.
func (c *Controller) Window() (center spatial.Cell, radius int, ok bool) {
	if !c.state.Tracking() {
		return spatial.Cell{}, 0, false
	}
	return c.state.LastCenterCell, c.state.LastRadius, true
}

// Update samples the observer once and returns the cells to unload, load and
// promote. dt is the elapsed time since the previous sample in seconds.
//
// The window only changes when the observer changes cell. The lookahead radius
// is recomputed at that point from the average speed since the previous cell
// change, so repeated or in-cell samples always return an empty Delta.
func (c *Controller) Update(observer spatial.Vec3, dt float64) Delta {
	vis := c.settings.VisibleRadius()
	if !observer.Finite() {
		return Delta{Center: c.state.LastCenterCell, Radius: c.state.LastRadius, Visible: vis}
	}
	center := c.idx.CellOf(observer)

	if !c.state.Tracking() {
		r := c.settings.LoadRadiusCells
		c.state = State{LastCenterCell: center, LastCenterPos: observer, LastRadius: r}
		return Delta{
			Center:  center,
			Radius:  r,
			Visible: vis,
			Full:    true,
			Load:    c.window(center, r, nil),
		}
	}

	if dt > 0 && !math.IsInf(dt, 0) {
		c.state.Dwell += dt
	}
	prev, prevR := c.state.LastCenterCell, c.state.LastRadius
	if center == prev {
		return Delta{Center: center, Radius: prevR, Visible: vis}
	}

	speed := 0.0
	if c.state.Dwell > 0 {
		speed = float64(observer.Sub(c.state.LastCenterPos).PlanarLen()) / c.state.Dwell
	}
	radius := c.settings.LoadRadiusCells + c.settings.lookaheadCells(speed, c.cellSize)
	c.state = State{LastCenterCell: center, LastCenterPos: observer, LastRadius: radius}

	d := Delta{Center: center, Radius: radius, Visible: vis}

	dx := center.X - prev.X
	dy := center.Y - prev.Y
	if mathx.MaxInt(mathx.AbsInt(dx), mathx.AbsInt(dy)) > prevR+radius {
		// Disjoint windows.
		d.Full = true
		d.Unload = c.window(prev, prevR, nil)
		d.Load = c.window(center, radius, nil)
		return d
	}

	c.resetTouched()
	if radius != prevR {
		c.touchRing(prev, mathx.MinInt(radius, prevR), mathx.MaxInt(radius, prevR))
	}
	cur := prev
	sx := sign(dx)
	for i := 0; i < mathx.AbsInt(dx); i++ {
		next := spatial.Cell{X: cur.X + sx, Y: cur.Y}
		c.touchColumn(cur.X-sx*radius, cur.Y, radius)
		c.touchColumn(next.X+sx*radius, next.Y, radius)
		c.touchColumn(next.X+sx*vis, next.Y, vis)
		cur = next
	}
	sy := sign(dy)
	for i := 0; i < mathx.AbsInt(dy); i++ {
		next := spatial.Cell{X: cur.X, Y: cur.Y + sy}
		c.touchRow(cur.Y-sy*radius, cur.X, radius)
		c.touchRow(next.Y+sy*radius, next.X, radius)
		c.touchRow(next.Y+sy*vis, next.X, vis)
		cur = next
	}

	// Reconcile every touched cell against the old and new windows so a cell
	// crossed twice within one tick nets out.
	for _, cell := range c.touched {
		was := cell.Chebyshev(prev) <= prevR
		is := cell.Chebyshev(center) <= radius
		switch {
		case was && !is:
			d.Unload = append(d.Unload, cell)
		case !was && is:
			d.Load = append(d.Load, cell)
		case was && is:
			if cell.Chebyshev(center) <= vis && cell.Chebyshev(prev) > vis {
				d.Promote = append(d.Promote, cell)
			}
		}
	}
	return d
}

// window lists the in-bounds cells within r of center in row-major order.
func (c *Controller) window(center spatial.Cell, r int, out []spatial.Cell) []spatial.Cell {
	lo := c.bounds.Min
	hi := c.bounds.Max()
	x0, x1 := mathx.MaxInt(center.X-r, lo.X), mathx.MinInt(center.X+r, hi.X)
	y0, y1 := mathx.MaxInt(center.Y-r, lo.Y), mathx.MinInt(center.Y+r, hi.Y)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			out = append(out, spatial.Cell{X: x, Y: y})
		}
	}
	return out
}

func (c *Controller) resetTouched() {
	clear(c.seen)
	c.touched = c.touched[:0]
}

func (c *Controller) touch(cell spatial.Cell) {
	if !c.bounds.Contains(cell) {
		return
	}
	if _, ok := c.seen[cell]; ok {
		return
	}
	c.seen[cell] = struct{}{}
	c.touched = append(c.touched, cell)
}

func (c *Controller) touchColumn(x, cy, r int) {
	if x < c.bounds.Min.X || x > c.bounds.Max().X {
		return
	}
	for y := cy - r; y <= cy+r; y++ {
		c.touch(spatial.Cell{X: x, Y: y})
	}
}

func (c *Controller) touchRow(y, cx, r int) {
	if y < c.bounds.Min.Y || y > c.bounds.Max().Y {
		return
	}
	for x := cx - r; x <= cx+r; x++ {
		c.touch(spatial.Cell{X: x, Y: y})
	}
}

// touchRing visits cells with inner < chebyshev distance <= outer.
func (c *Controller) touchRing(center spatial.Cell, inner, outer int) {
	for r := inner + 1; r <= outer; r++ {
		c.touchRow(center.Y-r, center.X, r)
		c.touchRow(center.Y+r, center.X, r)
		c.touchColumn(center.X-r, center.Y, r-1)
		c.touchColumn(center.X+r, center.Y, r-1)
	}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
