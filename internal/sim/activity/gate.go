package activity

import (
	"fmt"

	"hordestream.ai/internal/sim/logic/mathx"
	"hordestream.ai/internal/sim/population"
	"hordestream.ai/internal/sim/spatial"
	"hordestream.ai/internal/sim/workers"
)

const (
	DefaultNear    = 34
	DefaultFar     = 40
	DefaultBuckets = 4
)

type Band uint8

const (
	BandNear Band = iota
	BandDead
	BandFar
)

type Stats struct {
	Phase       int `json:"phase"`
	Evaluated   int `json:"evaluated"`
	Activated   int `json:"activated"`
	Deactivated int `json:"deactivated"`
	Shown       int `json:"shown"`
	Hidden      int `json:"hidden"`
}

func (s *Stats) add(o Stats) {
	s.Evaluated += o.Evaluated
	s.Activated += o.Activated
	s.Deactivated += o.Deactivated
	s.Shown += o.Shown
	s.Hidden += o.Hidden
}

// Gate toggles simulation and render flags by planar distance to the
// observer. Distances between near and far leave both flags as they are.
type Gate struct {
	nearSq  float32
	farSq   float32
	buckets int
	phase   int

	perWorker []Stats
}

func NewGate(near, far float32, buckets int) (*Gate, error) {
	if !mathx.IsFinite32(near) || !mathx.IsFinite32(far) || near <= 0 || far <= near {
		return nil, fmt.Errorf("%w: culling near=%v far=%v (need 0 < near < far)", spatial.ErrConfig, near, far)
	}
	if buckets < 1 {
		return nil, fmt.Errorf("%w: culling buckets=%d", spatial.ErrConfig, buckets)
	}
	return &Gate{nearSq: near * near, farSq: far * far, buckets: buckets}, nil
}

func (g *Gate) Buckets() int { return g.buckets }

func (g *Gate) Classify(d2 float32) Band {
	switch {
	case d2 <= g.nearSq:
		return BandNear
	case d2 >= g.farSq:
		return BandFar
	default:
		return BandDead
	}
}

// Bucket is the phase in which an agent is gated. It depends on the index
// slot only, so live set reordering never moves an agent between buckets.
func (g *Gate) Bucket(slot int32) int {
	return mathx.Mod(int(slot), g.buckets)
}

// Evaluate gates the agents of this tick's bucket and advances the phase.
// Every live agent is gated at least once per Buckets() ticks. Only Active
// and RenderSuppressed are written.
func (g *Gate) Evaluate(agents []population.Agent, observer spatial.Vec3, pool *workers.Pool) Stats {
	phase := g.phase
	g.phase = (g.phase + 1) % g.buckets

	if len(g.perWorker) != pool.Size() {
		g.perWorker = make([]Stats, pool.Size())
	}
	for i := range g.perWorker {
		g.perWorker[i] = Stats{}
	}

	pool.Run(len(agents), func(w, lo, hi int) {
		st := &g.perWorker[w]
		for i := lo; i < hi; i++ {
			if g.Bucket(agents[i].Slot) == phase {
				g.gate(&agents[i], observer, st)
			}
		}
	})

	out := Stats{Phase: phase}
	for _, st := range g.perWorker {
		out.add(st)
	}
	return out
}

func (g *Gate) gate(a *population.Agent, observer spatial.Vec3, st *Stats) {
	st.Evaluated++
	switch g.Classify(a.Pos.PlanarDistSq(observer)) {
	case BandNear:
		if !a.Active {
			a.Active = true
			st.Activated++
		}
		if a.RenderSuppressed {
			a.RenderSuppressed = false
			st.Shown++
		}
	case BandFar:
		if a.Active {
			a.Active = false
			st.Deactivated++
		}
		if !a.RenderSuppressed {
			a.RenderSuppressed = true
			st.Hidden++
		}
	}
}
