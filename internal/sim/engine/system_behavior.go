package engine

import (
	"hordestream.ai/internal/sim/behavior"
)

type behaviorCounts struct {
	active   int
	rendered int
}

// systemBehavior runs selection and steering for active agents and counts
// the gate flags of the whole live set.
func (e *Engine) systemBehavior(dt float64) behaviorCounts {
	agents := e.store.Agents()
	for i := range e.perWorker {
		e.perWorker[i] = behaviorCounts{}
	}
	run := !e.cfg.Behavior.Disabled
	fdt := float32(dt)
	sight := e.cfg.Behavior.SightRadius
	observer := e.observer
	seed := e.cfg.Seed
	elapsed := e.elapsed

	e.pool.Run(len(agents), func(w, lo, hi int) {
		c := &e.perWorker[w]
		for i := lo; i < hi; i++ {
			a := &agents[i]
			if !a.RenderSuppressed {
				c.rendered++
			}
			if !a.Active {
				continue
			}
			c.active++
			if !run {
				continue
			}
			behavior.Observe(&a.Behavior.Blackboard, a.Pos, observer, sight, fdt)
			behavior.Apply(&a.Behavior, behavior.Select(a.Behavior.Blackboard))
			a.DesiredVelocity = behavior.Desired(&a.Behavior, a.Pos, a.MoveSpeed, seed, a.Slot, elapsed, fdt)
			a.Velocity = behavior.Steer(a.Velocity, a.DesiredVelocity)
			a.Pos = behavior.Integrate(a.Pos, a.Velocity, fdt)
		}
	})

	var out behaviorCounts
	for _, c := range e.perWorker {
		out.active += c.active
		out.rendered += c.rendered
	}
	return out
}
