package engine

import (
	"context"
	"time"

	"hordestream.ai/internal/sim/spatial"
)

func (e *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stop:
			return nil
		case p := <-e.observerIn:
			// Latest sample wins; the tick reads it once.
			e.observer = p
		case req := <-e.cellReq:
			e.handleCellReq(req)
		case req := <-e.agentReq:
			e.handleAgentReq(req)
		case req := <-e.snapshotReq:
			e.handleSnapshotReq(req)
		case req := <-e.subscribe:
			e.handleSubscribe(req)
		case id := <-e.unsubscribe:
			e.handleUnsubscribe(id)
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			e.step(dt)
		}
	}
}

func (e *Engine) Stop() { e.stopOnce.Do(func() { close(e.stop) }) }

// SetObserver queues an observer position for the next tick. It never blocks;
// an unread older sample is replaced.
func (e *Engine) SetObserver(p spatial.Vec3) {
	select {
	case e.observerIn <- p:
		return
	default:
	}
	// Drop one.
	select {
	case <-e.observerIn:
	default:
	}
	select {
	case e.observerIn <- p:
	default:
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
