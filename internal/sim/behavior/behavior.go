// Package behavior selects and applies the per-agent behavior variant and
// integrates steering for agents the activity gate has enabled.
package behavior

import (
	"math"

	"hordestream.ai/internal/sim/logic/mathx"
	"hordestream.ai/internal/sim/spatial"
)

type Variant uint8

const (
	Idle Variant = iota
	Wander
	Chase
)

func (v Variant) String() string {
	switch v {
	case Idle:
		return "IDLE"
	case Wander:
		return "WANDER"
	case Chase:
		return "CHASE"
	default:
		return "UNKNOWN"
	}
}

const (
	DefaultMoveSpeed = 3.5
	// NeverSeen is the blackboard value for an agent that has not sighted the observer.
	NeverSeen = 999

	idleUtility   = 0.1
	wanderUtility = 0.4
	chaseFalloff  = 3.0

	steerBlend      = 0.25
	wanderMinRadius = 3.0
	wanderMaxRadius = 8.0
	wanderMinRepath = 1.5
	wanderMaxRepath = 3.5
	arriveDistSq    = 0.25
)

type Blackboard struct {
	TimeSinceSeenObserver float32      `json:"time_since_seen"`
	LastKnownObserverPos  spatial.Vec3 `json:"last_known_observer_pos"`
}

type WanderState struct {
	Target      spatial.Vec3 `json:"target"`
	RepathTimer float32      `json:"repath_timer"`
	HasTarget   bool         `json:"has_target"`
}

type State struct {
	Variant    Variant     `json:"variant"`
	Blackboard Blackboard  `json:"blackboard"`
	Wander     WanderState `json:"wander"`
}

// Spawn returns the initial state of an agent placed at pos.
func Spawn(pos spatial.Vec3) State {
	return State{
		Variant: Wander,
		Blackboard: Blackboard{
			TimeSinceSeenObserver: NeverSeen,
			LastKnownObserverPos:  pos,
		},
	}
}

// Select picks the highest-utility variant. Ties keep the earlier variant.
func Select(bb Blackboard) Variant {
	chase := float32(1) - mathx.Saturate(bb.TimeSinceSeenObserver/chaseFalloff)
	chase = mathx.Saturate(chase)
	best, score := Idle, float32(idleUtility)
	if wanderUtility > score {
		best, score = Wander, wanderUtility
	}
	if chase > score {
		best = Chase
	}
	return best
}

// Apply switches s to v. It reports false and leaves s untouched when the
// variant is unchanged.
func Apply(s *State, v Variant) bool {
	if s.Variant == v {
		return false
	}
	s.Variant = v
	s.Wander = WanderState{}
	return true
}

// Steer blends the current velocity toward the desired one.
func Steer(v, desired spatial.Vec3) spatial.Vec3 {
	return v.Add(desired.Sub(v).Scale(steerBlend))
}

func Integrate(pos, v spatial.Vec3, dt float32) spatial.Vec3 {
	return pos.Add(v.Scale(dt))
}

// Observe updates the blackboard from one observer sample.
func Observe(bb *Blackboard, pos, observer spatial.Vec3, sightRadius, dt float32) {
	if sightRadius > 0 && pos.PlanarDistSq(observer) <= sightRadius*sightRadius {
		bb.TimeSinceSeenObserver = 0
		bb.LastKnownObserverPos = observer
		return
	}
	if bb.TimeSinceSeenObserver < NeverSeen {
		bb.TimeSinceSeenObserver += dt
	}
}

// Desired returns the velocity the variant wants this tick. Wander draws are
// keyed by seed, slot and elapsed time.
func Desired(s *State, pos spatial.Vec3, speed float32, seed int64, slot int32, elapsed float64, dt float32) spatial.Vec3 {
	switch s.Variant {
	case Chase:
		return toward(pos, s.Blackboard.LastKnownObserverPos, speed)
	case Wander:
		w := &s.Wander
		w.RepathTimer -= dt
		if !w.HasTarget || w.RepathTimer <= 0 || pos.PlanarDistSq(w.Target) <= arriveDistSq {
			retarget(w, pos, seed, slot, elapsed)
		}
		return toward(pos, w.Target, speed)
	default:
		return spatial.Vec3{}
	}
}

func retarget(w *WanderState, pos spatial.Vec3, seed int64, slot int32, elapsed float64) {
	ms := int(elapsed * 1000)
	angle := mathx.Range(mathx.Hash3(seed, int(slot), ms, 0), 0, 2*math.Pi)
	radius := mathx.Range(mathx.Hash3(seed, int(slot), ms, 1), wanderMinRadius, wanderMaxRadius)
	w.Target = spatial.Vec3{
		X: pos.X + float32(math.Cos(angle)*radius),
		Y: pos.Y,
		Z: pos.Z + float32(math.Sin(angle)*radius),
	}
	w.RepathTimer = float32(mathx.Range(mathx.Hash3(seed, int(slot), ms, 2), wanderMinRepath, wanderMaxRepath))
	w.HasTarget = true
}

func toward(from, to spatial.Vec3, speed float32) spatial.Vec3 {
	d := to.Sub(from)
	d.Y = 0
	l := d.PlanarLen()
	if l < 1e-4 {
		return spatial.Vec3{}
	}
	return d.Scale(speed / l)
}
