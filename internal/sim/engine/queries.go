package engine

import (
	"context"
	"errors"

	"hordestream.ai/internal/sim/population"
	"hordestream.ai/internal/sim/spatial"
)

type cellReq struct {
	Cell spatial.Cell
	Resp chan bool
}

type agentResp struct {
	Active bool
	Found  bool
}

type agentReq struct {
	ID   population.AgentID
	Resp chan agentResp
}

// Snapshot is a copy of the live set taken on the engine loop goroutine.
type Snapshot struct {
	Tick    uint64             `json:"tick"`
	Center  spatial.Cell       `json:"center"`
	Radius  int                `json:"radius"`
	Cells   []spatial.Cell     `json:"cells"`
	Agents  []population.Agent `json:"agents"`
	Total   int                `json:"total"`
	Limited bool               `json:"limited,omitempty"`
}

type snapshotReq struct {
	MaxAgents int
	Resp      chan Snapshot
}

var errNoQueries = errors.New("engine queries not available")

// RequestCellLoaded asks the engine loop whether cell c is in the live set.
func (e *Engine) RequestCellLoaded(ctx context.Context, c spatial.Cell) (bool, error) {
	if e == nil || e.cellReq == nil {
		return false, errNoQueries
	}
	if e.disabled != nil {
		return false, ErrDisabled
	}
	req := cellReq{Cell: c, Resp: make(chan bool, 1)}
	select {
	case e.cellReq <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case v := <-req.Resp:
		return v, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// RequestAgentActive asks the engine loop for the simulation gate of agent id.
func (e *Engine) RequestAgentActive(ctx context.Context, id population.AgentID) (active, found bool, err error) {
	if e == nil || e.agentReq == nil {
		return false, false, errNoQueries
	}
	if e.disabled != nil {
		return false, false, ErrDisabled
	}
	req := agentReq{ID: id, Resp: make(chan agentResp, 1)}
	select {
	case e.agentReq <- req:
	case <-ctx.Done():
		return false, false, ctx.Err()
	}
	select {
	case resp := <-req.Resp:
		return resp.Active, resp.Found, nil
	case <-ctx.Done():
		return false, false, ctx.Err()
	}
}

// RequestSnapshot copies up to maxAgents live agents from the engine loop.
func (e *Engine) RequestSnapshot(ctx context.Context, maxAgents int) (Snapshot, error) {
	if e == nil || e.snapshotReq == nil {
		return Snapshot{}, errNoQueries
	}
	if e.disabled != nil {
		return Snapshot{}, ErrDisabled
	}
	req := snapshotReq{MaxAgents: maxAgents, Resp: make(chan Snapshot, 1)}
	select {
	case e.snapshotReq <- req:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-req.Resp:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (e *Engine) handleCellReq(req cellReq) {
	select {
	case req.Resp <- e.IsCellLoaded(req.Cell):
	default:
	}
}

func (e *Engine) handleAgentReq(req agentReq) {
	active, found := e.IsAgentActive(req.ID)
	select {
	case req.Resp <- agentResp{Active: active, Found: found}:
	default:
	}
}

func (e *Engine) handleSnapshotReq(req snapshotReq) {
	select {
	case req.Resp <- e.Snapshot(req.MaxAgents):
	default:
	}
}

// Snapshot must be called from the engine loop goroutine (or without Run).
func (e *Engine) Snapshot(maxAgents int) Snapshot {
	s := Snapshot{Tick: e.tick.Load()}
	if e.store == nil {
		return s
	}
	s.Center, s.Radius, _ = e.ctrl.Window()
	s.Cells = e.store.LoadedCells()
	agents := e.store.Agents()
	s.Total = len(agents)
	if maxAgents <= 0 || maxAgents > len(agents) {
		maxAgents = len(agents)
	} else if maxAgents < len(agents) {
		s.Limited = true
	}
	s.Agents = append([]population.Agent(nil), agents[:maxAgents]...)
	return s
}
