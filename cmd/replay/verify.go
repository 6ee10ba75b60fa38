package main

import (
	"fmt"

	"hordestream.ai/internal/sim/engine"
)

// Violation is one failed check on a tick log entry.
type Violation struct {
	File  string
	Tick  uint64
	Check string
	Msg   string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s tick=%d %s: %s", v.File, v.Tick, v.Check, v.Msg)
}

type Summary struct {
	Entries   int
	Runs      int
	Gaps      int
	Disabled  int
	Spawned   uint64
	Destroyed uint64
	Promoted  uint64
	Swept     uint64
	PeakLive  int
	PeakCells int
	MaxStepMS float64
	SumStepMS float64
}

// verifier checks the live set bookkeeping of consecutive tick entries.
type verifier struct {
	fromTick, toTick uint64
	maxViolations    int

	started  bool
	prevTick uint64
	prevLive int

	sum        Summary
	violations []Violation
}

func (v *verifier) add(file string, e engine.TickEntry) {
	// A tick 0 (or a step backwards) starts a new engine run.
	if !v.started || e.Tick == 0 || e.Tick <= v.prevTick {
		if v.started && e.Tick != 0 {
			v.fail(file, e.Tick, "monotonic", fmt.Sprintf("tick went from %d to %d", v.prevTick, e.Tick))
		}
		v.sum.Runs++
		v.started = true
		v.prevLive = 0
		if e.Tick != 0 {
			// Joined mid-run: no baseline for the balance check.
			v.prevLive = e.LiveAgents - e.Spawned + e.Destroyed
		}
	} else if e.Tick != v.prevTick+1 {
		v.sum.Gaps++
		v.prevLive = e.LiveAgents - e.Spawned + e.Destroyed
	}
	v.prevTick = e.Tick

	inRange := e.Tick >= v.fromTick && (v.toTick == 0 || e.Tick <= v.toTick)
	if inRange {
		v.check(file, e)
		v.tally(e)
	}
	v.prevLive = e.LiveAgents
}

func (v *verifier) check(file string, e engine.TickEntry) {
	if e.Disabled {
		if e.LiveAgents != 0 || e.LoadedCells != 0 {
			v.fail(file, e.Tick, "disabled", fmt.Sprintf("disabled engine has live=%d cells=%d", e.LiveAgents, e.LoadedCells))
		}
		return
	}
	if want := v.prevLive + e.Spawned - e.Destroyed; e.LiveAgents != want {
		v.fail(file, e.Tick, "balance", fmt.Sprintf("live=%d want=%d (prev=%d spawned=%d destroyed=%d)", e.LiveAgents, want, v.prevLive, e.Spawned, e.Destroyed))
	}
	side := 2*e.Radius + 1
	if e.LoadedCells > side*side {
		v.fail(file, e.Tick, "window", fmt.Sprintf("loaded_cells=%d exceeds (2R+1)^2=%d at R=%d", e.LoadedCells, side*side, e.Radius))
	}
	if e.ActiveAgents > e.LiveAgents || e.RenderedAgents > e.LiveAgents {
		v.fail(file, e.Tick, "flags", fmt.Sprintf("active=%d rendered=%d exceed live=%d", e.ActiveAgents, e.RenderedAgents, e.LiveAgents))
	}
	if e.DuplicateSkipped != 0 {
		v.fail(file, e.Tick, "duplicate", fmt.Sprintf("%d instantiations hit an already loaded cell", e.DuplicateSkipped))
	}
}

func (v *verifier) tally(e engine.TickEntry) {
	s := &v.sum
	s.Entries++
	if e.Disabled {
		s.Disabled++
	}
	s.Spawned += uint64(e.Spawned)
	s.Destroyed += uint64(e.Destroyed)
	s.Promoted += uint64(e.Promoted)
	s.Swept += uint64(e.Swept)
	if e.LiveAgents > s.PeakLive {
		s.PeakLive = e.LiveAgents
	}
	if e.LoadedCells > s.PeakCells {
		s.PeakCells = e.LoadedCells
	}
	if e.StepMS > s.MaxStepMS {
		s.MaxStepMS = e.StepMS
	}
	s.SumStepMS += e.StepMS
}

func (v *verifier) fail(file string, tick uint64, check, msg string) {
	if v.maxViolations > 0 && len(v.violations) >= v.maxViolations {
		return
	}
	v.violations = append(v.violations, Violation{File: file, Tick: tick, Check: check, Msg: msg})
}
