package engine

import (
	"encoding/json"

	"hordestream.ai/internal/observerproto"
	"hordestream.ai/internal/sim/spatial"
)

type subscribeReq struct {
	SessionID string
	Out       chan []byte
}

// Subscribe registers out for per-tick TICK messages. Slow readers only see
// the latest message.
func (e *Engine) Subscribe(sessionID string, out chan []byte) bool {
	select {
	case e.subscribe <- subscribeReq{SessionID: sessionID, Out: out}:
		return true
	default:
		return false
	}
}

func (e *Engine) Unsubscribe(sessionID string) bool {
	select {
	case e.unsubscribe <- sessionID:
		return true
	default:
		return false
	}
}

func (e *Engine) handleSubscribe(req subscribeReq) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	e.subscribers[req.SessionID] = req.Out
}

func (e *Engine) handleUnsubscribe(id string) {
	delete(e.subscribers, id)
}

func (e *Engine) stepObservers(r TickReport) {
	if len(e.subscribers) == 0 {
		return
	}
	b, err := json.Marshal(e.buildTickMsg(r))
	if err != nil {
		return
	}
	for _, out := range e.subscribers {
		sendLatest(out, b)
	}
}

func (e *Engine) buildTickMsg(r TickReport) observerproto.TickMsg {
	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            r.Tick,
		Disabled:        r.Disabled,
		Center:          cellPair(r.Delta.Center),
		Radius:          r.Delta.Radius,
		Visible:         r.Delta.Visible,
		Load:            cellPairs(r.Delta.Load),
		Unload:          cellPairs(r.Delta.Unload),
		Promote:         cellPairs(r.Delta.Promote),
		LiveAgents:      r.LiveAgents,
		ActiveAgents:    r.ActiveAgents,
		RenderedAgents:  r.RenderedAgents,
	}
	if e.store == nil {
		return msg
	}
	for _, a := range e.store.Agents() {
		if len(msg.Agents) >= e.cfg.FeedMaxAgents {
			break
		}
		if a.RenderSuppressed {
			continue
		}
		msg.Agents = append(msg.Agents, observerproto.AgentState{
			ID:       uint64(a.ID),
			Cell:     cellPair(a.Cell),
			Pos:      [3]float32{a.Pos.X, a.Pos.Y, a.Pos.Z},
			Behavior: a.Behavior.Variant.String(),
			Active:   a.Active,
		})
	}
	return msg
}

func cellPair(c spatial.Cell) [2]int { return [2]int{c.X, c.Y} }

func cellPairs(cs []spatial.Cell) [][2]int {
	if len(cs) == 0 {
		return nil
	}
	out := make([][2]int, len(cs))
	for i, c := range cs {
		out[i] = cellPair(c)
	}
	return out
}
