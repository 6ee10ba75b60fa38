package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"hordestream.ai/internal/sim/engine"
	"hordestream.ai/internal/sim/stream"
	"hordestream.ai/internal/sim/worldgen"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "tuning.schema.json"

type Tuning struct {
	Engine   Engine          `yaml:"engine"`
	Stream   stream.Settings `yaml:"stream"`
	Culling  Culling         `yaml:"culling"`
	Behavior Behavior        `yaml:"behavior"`
	Worldgen Worldgen        `yaml:"worldgen"`
}

type Engine struct {
	ID              string `yaml:"id"`
	TickRateHz      int    `yaml:"tick_rate_hz"`
	Seed            int64  `yaml:"seed"`
	Workers         int    `yaml:"workers"`
	SweepEveryTicks int    `yaml:"sweep_every_ticks"`
	FeedMaxAgents   int    `yaml:"feed_max_agents"`
}

type Culling struct {
	Near    float32 `yaml:"near"`
	Far     float32 `yaml:"far"`
	Buckets int     `yaml:"buckets"`
}

type Behavior struct {
	Disabled    bool    `yaml:"disabled"`
	SightRadius float32 `yaml:"sight_radius"`
}

type Worldgen struct {
	Mode         string  `yaml:"mode"`
	Count        int     `yaml:"count"`
	HalfExtent   float32 `yaml:"half_extent"`
	DensityScale float64 `yaml:"density_scale"`
	Threshold    float64 `yaml:"threshold"`
	Octaves      int     `yaml:"octaves"`
	PerSectorMin int     `yaml:"per_sector_min"`
	PerSectorMax int     `yaml:"per_sector_max"`
}

// Defaults returns the built-in tuning used when no file is given.
func Defaults() Tuning {
	var t Tuning
	t.applyDefaults()
	return t
}

func (t *Tuning) applyDefaults() {
	if t.Engine.ID == "" {
		t.Engine.ID = "OVERWORLD"
	}
	if t.Engine.TickRateHz <= 0 {
		t.Engine.TickRateHz = 30
	}
	if t.Engine.Seed == 0 {
		t.Engine.Seed = 1337
	}
	if t.Engine.SweepEveryTicks == 0 {
		t.Engine.SweepEveryTicks = 60
	}
	if t.Stream.SectorSize == 0 {
		t.Stream.SectorSize = 32
	}
	if t.Stream.LoadRadiusCells == 0 {
		t.Stream.LoadRadiusCells = 4
	}
	if t.Stream.HardUnloadRadiusCells == 0 {
		t.Stream.HardUnloadRadiusCells = t.Stream.LoadRadiusCells + 2
	}
	if t.Culling.Near == 0 {
		t.Culling.Near = 34
	}
	if t.Culling.Far == 0 {
		t.Culling.Far = 40
	}
	if t.Culling.Buckets == 0 {
		t.Culling.Buckets = 4
	}
	if t.Behavior.SightRadius == 0 {
		t.Behavior.SightRadius = 20
	}
	if t.Worldgen.Mode == "" {
		t.Worldgen.Mode = worldgen.ModeNoise
	}
	if t.Worldgen.Count == 0 {
		t.Worldgen.Count = 200_000
	}
	if t.Worldgen.HalfExtent == 0 {
		t.Worldgen.HalfExtent = 4096
	}
	if t.Worldgen.DensityScale == 0 {
		t.Worldgen.DensityScale = 0.004
	}
	if t.Worldgen.PerSectorMin == 0 && t.Worldgen.PerSectorMax == 0 {
		t.Worldgen.PerSectorMin, t.Worldgen.PerSectorMax = 10, 20
	}
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := Validate(raw); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	return t, nil
}

// Validate checks raw YAML against the embedded JSON schema.
func Validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees plain JSON types.
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	return schema.Validate(v)
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
}

func (t Tuning) EngineConfig() engine.Config {
	return engine.Config{
		ID:              t.Engine.ID,
		TickRateHz:      t.Engine.TickRateHz,
		Seed:            t.Engine.Seed,
		Stream:          t.Stream,
		Culling:         engine.CullingConfig{Near: t.Culling.Near, Far: t.Culling.Far, Buckets: t.Culling.Buckets},
		Behavior:        engine.BehaviorConfig{Disabled: t.Behavior.Disabled, SightRadius: t.Behavior.SightRadius},
		Workers:         t.Engine.Workers,
		SweepEveryTicks: t.Engine.SweepEveryTicks,
		FeedMaxAgents:   t.Engine.FeedMaxAgents,
	}
}

func (t Tuning) WorldgenParams() worldgen.Params {
	return worldgen.Params{
		Mode:         t.Worldgen.Mode,
		Seed:         t.Engine.Seed,
		Count:        t.Worldgen.Count,
		HalfExtent:   t.Worldgen.HalfExtent,
		DensityScale: t.Worldgen.DensityScale,
		Threshold:    t.Worldgen.Threshold,
		Octaves:      t.Worldgen.Octaves,
		SectorSize:   t.Stream.SectorSize,
		PerSectorMin: t.Worldgen.PerSectorMin,
		PerSectorMax: t.Worldgen.PerSectorMax,
	}
}
