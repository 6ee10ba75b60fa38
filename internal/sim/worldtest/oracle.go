package worldtest

import (
	"fmt"

	"hordestream.ai/internal/persistence/snapshot"
	"hordestream.ai/internal/sim/population"
	"hordestream.ai/internal/sim/spatial"
)

// LiveView is the part of a live set the oracle compares: per-agent cell and
// index slot, plus the set of loaded cells.
type LiveView struct {
	Center spatial.Cell
	Radius int
	Loaded map[spatial.Cell]int
	Agents []AgentRef
}

type AgentRef struct {
	ID   uint64
	Slot int32
	Cell spatial.Cell
}

func ViewOfStore(store *population.Store, center spatial.Cell, radius int) LiveView {
	v := LiveView{Center: center, Radius: radius, Loaded: make(map[spatial.Cell]int, store.LoadedCellCount())}
	for _, c := range store.LoadedCells() {
		v.Loaded[c] = len(store.CellAgents(c))
	}
	v.Agents = make([]AgentRef, 0, store.Len())
	for _, a := range store.Agents() {
		v.Agents = append(v.Agents, AgentRef{ID: uint64(a.ID), Slot: a.Slot, Cell: a.Cell})
	}
	return v
}

func ViewOfSnapshot(s snapshot.SnapshotV1) LiveView {
	v := LiveView{Center: s.Center, Radius: s.Radius, Loaded: make(map[spatial.Cell]int, len(s.Cells))}
	for _, c := range s.Cells {
		v.Loaded[c] = 0
	}
	v.Agents = make([]AgentRef, 0, len(s.Agents))
	for _, a := range s.Agents {
		v.Agents = append(v.Agents, AgentRef{ID: a.ID, Slot: a.Slot, Cell: a.Cell})
		if _, ok := v.Loaded[a.Cell]; ok {
			v.Loaded[a.Cell]++
		}
	}
	return v
}

// Check recomputes the window over idx by brute force: every in-bounds window
// cell is loaded with exactly its records, each record is instantiated once,
// and nothing lives outside the window.
func Check(idx *spatial.Index, v LiveView) error {
	wantCells := 0
	for y := v.Center.Y - v.Radius; y <= v.Center.Y+v.Radius; y++ {
		for x := v.Center.X - v.Radius; x <= v.Center.X+v.Radius; x++ {
			c := spatial.Cell{X: x, Y: y}
			if !idx.Contains(c) {
				continue
			}
			wantCells++
			got, ok := v.Loaded[c]
			if !ok {
				return fmt.Errorf("coverage: cell %+v not loaded", c)
			}
			if n := idx.CellLen(c); got != n {
				return fmt.Errorf("coverage: cell %+v has %d agents want %d", c, got, n)
			}
		}
	}
	if len(v.Loaded) != wantCells {
		return fmt.Errorf("leak: %d loaded cells want %d", len(v.Loaded), wantCells)
	}
	seen := make(map[int32]struct{}, len(v.Agents))
	for _, a := range v.Agents {
		if _, dup := seen[a.Slot]; dup {
			return fmt.Errorf("duplicate: slot %d instantiated twice", a.Slot)
		}
		seen[a.Slot] = struct{}{}
		if a.Cell.Chebyshev(v.Center) > v.Radius {
			return fmt.Errorf("leak: agent %d in cell %+v outside window", a.ID, a.Cell)
		}
		if _, ok := v.Loaded[a.Cell]; !ok {
			return fmt.Errorf("leak: agent %d in unloaded cell %+v", a.ID, a.Cell)
		}
	}
	return nil
}
