package population

import (
	"hordestream.ai/internal/sim/spatial"
	"hordestream.ai/internal/sim/stream"
	"hordestream.ai/internal/sim/workers"
)

type PlanStats struct {
	UnloadCells  int `json:"unload_cells"`
	LoadCells    int `json:"load_cells"`
	PromoteCells int `json:"promote_cells"`
	Records      int `json:"records"`
}

// Loader turns controller deltas into deferred mutations against the live set.
type Loader struct {
	idx   *spatial.Index
	store *Store
	log   *Log
	pool  *workers.Pool
}

func NewLoader(idx *spatial.Index, store *Store, pool *workers.Pool) *Loader {
	return &Loader{
		idx:   idx,
		store: store,
		log:   NewLog(pool.Size()),
		pool:  pool,
	}
}

func (l *Loader) Store() *Store { return l.store }
func (l *Loader) Log() *Log     { return l.log }

// Plan records the destroys, promotes and instantiates for d. It only reads
// the store; nothing changes until Log().Apply.
func (l *Loader) Plan(d stream.Delta) PlanStats {
	st := PlanStats{UnloadCells: len(d.Unload), LoadCells: len(d.Load), PromoteCells: len(d.Promote)}

	l.pool.Run(len(d.Unload), func(w, lo, hi int) {
		seg := l.log.Segment(w)
		for _, c := range d.Unload[lo:hi] {
			for _, id := range l.store.CellAgents(c) {
				seg.Destroy(id)
			}
			seg.Release(c)
		}
	})
	l.pool.Run(len(d.Promote), func(w, lo, hi int) {
		seg := l.log.Segment(w)
		for _, c := range d.Promote[lo:hi] {
			for _, id := range l.store.CellAgents(c) {
				seg.Promote(id)
			}
		}
	})
	l.pool.Run(len(d.Load), func(w, lo, hi int) {
		seg := l.log.Segment(w)
		for _, c := range d.Load[lo:hi] {
			start, _, ok := l.idx.SlotRange(c)
			if !ok {
				continue
			}
			seg.Claim(c)
			visible := c.Chebyshev(d.Center) <= d.Visible
			for i, p := range l.idx.Slice(c) {
				seg.Instantiate(Spawn{Slot: int32(start + i), Cell: c, Pos: p, Visible: visible})
			}
		}
	})
	st.Records = l.log.Len()
	return st
}

// Sweep schedules every live cell farther than hardRadius from center for
// unload, skipping cells already listed in pending (this tick's Delta.Unload).
// It runs after Plan, before the tick's single Apply, and returns the number
// of cells scheduled.
func (l *Loader) Sweep(center spatial.Cell, hardRadius int, pending []spatial.Cell) int {
	var skip map[spatial.Cell]struct{}
	if len(pending) > 0 {
		skip = make(map[spatial.Cell]struct{}, len(pending))
		for _, c := range pending {
			skip[c] = struct{}{}
		}
	}
	seg := l.log.Segment(0)
	n := 0
	for c, ids := range l.store.cells {
		if c.Chebyshev(center) <= hardRadius {
			continue
		}
		if _, ok := skip[c]; ok {
			continue
		}
		for _, id := range ids {
			seg.Destroy(id)
		}
		seg.Release(c)
		n++
	}
	return n
}
