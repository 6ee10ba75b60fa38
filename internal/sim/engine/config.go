package engine

import (
	"fmt"

	"hordestream.ai/internal/sim/activity"
	"hordestream.ai/internal/sim/spatial"
	"hordestream.ai/internal/sim/stream"
	"hordestream.ai/internal/sim/workers"
)

// ErrConfig marks a configuration that keeps the engine disabled.
var ErrConfig = spatial.ErrConfig

type Config struct {
	ID         string
	TickRateHz int
	Seed       int64

	Stream   stream.Settings
	Culling  CullingConfig
	Behavior BehaviorConfig

	// Workers is the parallel fan-out inside a tick. 0 means NumCPU.
	Workers         int
	SweepEveryTicks int
	// FeedMaxAgents caps the rendered agents listed in each observer TICK.
	FeedMaxAgents int

	// InitialObserver is used until the first observer sample arrives.
	InitialObserver spatial.Vec3
}

type CullingConfig struct {
	Near    float32
	Far     float32
	Buckets int
}

type BehaviorConfig struct {
	Disabled    bool
	SightRadius float32
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = "default"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 30
	}
	if c.Culling.Near == 0 && c.Culling.Far == 0 {
		c.Culling.Near = activity.DefaultNear
		c.Culling.Far = activity.DefaultFar
	}
	if c.Culling.Buckets == 0 {
		c.Culling.Buckets = activity.DefaultBuckets
	}
	if c.Behavior.SightRadius == 0 {
		c.Behavior.SightRadius = 20
	}
	if c.Workers <= 0 {
		c.Workers = workers.New(0).Size()
	}
	if c.SweepEveryTicks == 0 {
		c.SweepEveryTicks = 60
	}
	if c.FeedMaxAgents == 0 {
		c.FeedMaxAgents = 512
	}
}

func (c Config) validate(idx *spatial.Index) error {
	if idx == nil {
		return fmt.Errorf("%w: no spatial index", ErrConfig)
	}
	if err := c.Stream.Validate(idx.CellSize()); err != nil {
		return err
	}
	if c.SweepEveryTicks < 0 {
		return fmt.Errorf("%w: sweep_every_ticks must be >= 0", ErrConfig)
	}
	if c.Behavior.SightRadius < 0 {
		return fmt.Errorf("%w: sight_radius must be >= 0", ErrConfig)
	}
	return nil
}
