package population

import (
	"sort"

	"hordestream.ai/internal/sim/behavior"
	"hordestream.ai/internal/sim/spatial"
)

type AgentID uint64

// Agent is one live, instantiated population member. Its Cell never changes.
type Agent struct {
	ID   AgentID      `json:"id"`
	Slot int32        `json:"slot"`
	Cell spatial.Cell `json:"cell"`

	Pos             spatial.Vec3 `json:"pos"`
	Velocity        spatial.Vec3 `json:"velocity"`
	DesiredVelocity spatial.Vec3 `json:"desired_velocity"`
	MoveSpeed       float32      `json:"move_speed"`

	Behavior behavior.State `json:"behavior"`

	Active           bool `json:"active"`
	RenderSuppressed bool `json:"render_suppressed"`
}

// Spawn is the payload of a deferred instantiate.
type Spawn struct {
	Slot    int32
	Cell    spatial.Cell
	Pos     spatial.Vec3
	Visible bool
}

// Store is the live set: dense agent records plus the cell → agent ids map.
// Membership changes only through Log.Apply.
type Store struct {
	agents []Agent
	byID   map[AgentID]int
	cells  map[spatial.Cell][]AgentID
	nextID AgentID
}

func NewStore() *Store {
	return &Store{
		byID:  map[AgentID]int{},
		cells: map[spatial.Cell][]AgentID{},
	}
}

func (s *Store) Len() int { return len(s.agents) }

// Agents exposes the dense records for in-place flag and motion updates.
// Callers must not append, remove or reorder entries.
func (s *Store) Agents() []Agent { return s.agents }

func (s *Store) Agent(id AgentID) (Agent, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Agent{}, false
	}
	return s.agents[i], true
}

func (s *Store) IsCellLoaded(c spatial.Cell) bool {
	_, ok := s.cells[c]
	return ok
}

// IsAgentActive reports the simulation gate of a live agent.
func (s *Store) IsAgentActive(id AgentID) (active, ok bool) {
	i, ok := s.byID[id]
	if !ok {
		return false, false
	}
	return s.agents[i].Active, true
}

// CellAgents returns the live ids of c. The slice aliases the store.
func (s *Store) CellAgents(c spatial.Cell) []AgentID { return s.cells[c] }

func (s *Store) LoadedCellCount() int { return len(s.cells) }

// LoadedCells returns the loaded cells in row-major order.
func (s *Store) LoadedCells() []spatial.Cell {
	out := make([]spatial.Cell, 0, len(s.cells))
	for c := range s.cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

func (s *Store) claim(c spatial.Cell) bool {
	if _, ok := s.cells[c]; ok {
		return false
	}
	s.cells[c] = nil
	return true
}

func (s *Store) spawn(sp Spawn) AgentID {
	s.nextID++
	id := s.nextID
	s.byID[id] = len(s.agents)
	s.agents = append(s.agents, Agent{
		ID:               id,
		Slot:             sp.Slot,
		Cell:             sp.Cell,
		Pos:              sp.Pos,
		MoveSpeed:        behavior.DefaultMoveSpeed,
		Behavior:         behavior.Spawn(sp.Pos),
		RenderSuppressed: !sp.Visible,
	})
	s.cells[sp.Cell] = append(s.cells[sp.Cell], id)
	return id
}

func (s *Store) promote(id AgentID) bool {
	i, ok := s.byID[id]
	if !ok {
		return false
	}
	s.agents[i].RenderSuppressed = false
	return true
}

func (s *Store) destroy(id AgentID) bool {
	i, ok := s.byID[id]
	if !ok {
		return false
	}
	c := s.agents[i].Cell
	last := len(s.agents) - 1
	if i != last {
		s.agents[i] = s.agents[last]
		s.byID[s.agents[i].ID] = i
	}
	s.agents[last] = Agent{}
	s.agents = s.agents[:last]
	delete(s.byID, id)

	ids := s.cells[c]
	if len(ids) > 0 && ids[0] == id {
		s.cells[c] = ids[1:]
		return true
	}
	for k, v := range ids {
		if v == id {
			s.cells[c] = append(ids[:k], ids[k+1:]...)
			break
		}
	}
	return true
}

// release drops c from the live set, destroying any agents still in it.
func (s *Store) release(c spatial.Cell) (ok bool, orphans int) {
	ids, ok := s.cells[c]
	if !ok {
		return false, 0
	}
	for _, id := range append([]AgentID(nil), ids...) {
		if s.destroy(id) {
			orphans++
		}
	}
	delete(s.cells, c)
	return true, orphans
}
