package engine

import (
	"time"

	"hordestream.ai/internal/sim/activity"
	"hordestream.ai/internal/sim/logic/mathx"
	"hordestream.ai/internal/sim/population"
	"hordestream.ai/internal/sim/spatial"
	"hordestream.ai/internal/sim/stream"
)

// TickReport describes the work done by one tick.
type TickReport struct {
	Tick     uint64
	Disabled bool
	Observer spatial.Vec3

	Delta stream.Delta
	Plan  population.PlanStats
	Apply population.ApplyStats
	Swept int
	Gate  activity.Stats

	LoadedCells    int
	LiveAgents     int
	ActiveAgents   int
	RenderedAgents int

	StepMS float64
}

func (r TickReport) Counts() TickCounts {
	return TickCounts{
		LoadCells:        len(r.Delta.Load),
		UnloadCells:      len(r.Delta.Unload),
		PromoteCells:     len(r.Delta.Promote),
		Spawned:          r.Apply.Spawned,
		Destroyed:        r.Apply.Destroyed,
		Promoted:         r.Apply.Promoted,
		DuplicateSkipped: r.Apply.DuplicateSkipped,
		Swept:            r.Swept,
		GateEvaluated:    r.Gate.Evaluated,
	}
}

// StepOnce advances the engine by a single tick with the given observer
// sample using the same ordering as Run. dt is in seconds.
func (e *Engine) StepOnce(observer spatial.Vec3, dt float64) TickReport {
	e.observer = observer
	return e.step(dt)
}

func (e *Engine) step(dt float64) TickReport {
	stepStart := time.Now()
	nowTick := e.tick.Load()
	r := TickReport{Tick: nowTick, Observer: e.observer}

	if e.disabled != nil {
		r.Disabled = true
		e.finishTick(&r, stepStart)
		return r
	}

	// Reads: controller diff, then parallel planning into per-worker segments.
	r.Delta = e.ctrl.Update(e.observer, dt)
	r.Plan = e.loader.Plan(r.Delta)

	if every := e.cfg.SweepEveryTicks; every > 0 && nowTick%uint64(every) == 0 {
		if center, radius, ok := e.ctrl.Window(); ok {
			hard := mathx.MaxInt(e.cfg.Stream.HardRadius(), radius+1)
			if r.Swept = e.loader.Sweep(center, hard, r.Delta.Unload); r.Swept > 0 {
				e.logger.Printf("tick %d: swept %d stray cells beyond hard radius %d", nowTick, r.Swept, hard)
			}
		}
	}

	// The tick's only sync point: unload -> promote -> load.
	r.Apply = e.loader.Log().Apply(e.store)

	r.Gate = e.gate.Evaluate(e.store.Agents(), e.observer, e.pool)
	counts := e.systemBehavior(dt)
	e.elapsed += dt

	r.LoadedCells = e.store.LoadedCellCount()
	r.LiveAgents = e.store.Len()
	r.ActiveAgents = counts.active
	r.RenderedAgents = counts.rendered

	e.totals.Spawned += uint64(r.Apply.Spawned)
	e.totals.Destroyed += uint64(r.Apply.Destroyed)
	e.totals.Promoted += uint64(r.Apply.Promoted)
	e.totals.Swept += uint64(r.Swept)

	e.finishTick(&r, stepStart)
	return r
}

func (e *Engine) finishTick(r *TickReport, stepStart time.Time) {
	r.StepMS = float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := e.tick.Add(1)

	e.stepObservers(*r)
	if e.tickLogger != nil {
		_ = e.tickLogger.WriteTick(TickEntry{
			EngineID:       e.cfg.ID,
			Tick:           r.Tick,
			Disabled:       r.Disabled,
			Observer:       r.Observer,
			Center:         r.Delta.Center,
			Radius:         r.Delta.Radius,
			TickCounts:     r.Counts(),
			LoadedCells:    r.LoadedCells,
			LiveAgents:     r.LiveAgents,
			ActiveAgents:   r.ActiveAgents,
			RenderedAgents: r.RenderedAgents,
			StepMS:         r.StepMS,
		})
	}
	e.publishMetrics(*r, nextTick)
}
