package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"hordestream.ai/internal/persistence/indexfile"
	"hordestream.ai/internal/sim/engine"
	"hordestream.ai/internal/sim/spatial"
	"hordestream.ai/internal/sim/tuning"
	"hordestream.ai/internal/sim/worldtest"
)

type walkOpts struct {
	TicksPerLeg  int
	Speed        float32
	CircleRadius float32
	Teleport     spatial.Vec3
}

type legResult struct {
	Name     string
	Ticks    int
	Spawned  int
	Destroy  int
	PeakLive int
	MaxMS    float64
}

func main() {
	var (
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (empty: built-in defaults)")
		indexCache = flag.String("index-cache", "", "spatial index cache file (optional)")
		count      = flag.Int("count", 0, "override worldgen count (0: keep)")
		ticks      = flag.Int("ticks", 120, "ticks per scripted leg")
		speed      = flag.Float64("speed", 4, "observer speed in world units per tick")
		verbose    = flag.Bool("v", false, "log engine diagnostics")
	)
	flag.Parse()

	tune := tuning.Defaults()
	if p := strings.TrimSpace(*tuningPath); p != "" {
		t, err := tuning.Load(p)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		if err == nil {
			tune = t
		}
	}
	if *count > 0 {
		tune.Worldgen.Count = *count
	}

	start := time.Now()
	idx, _, err := indexfile.LoadOrBuild(strings.TrimSpace(*indexCache), tune.WorldgenParams(), tune.Stream.SectorSize)
	if err != nil {
		fmt.Fprintln(os.Stderr, "spatial index:", err)
		os.Exit(1)
	}
	fmt.Printf("index: %s agents, %s cells, built in %s\n",
		humanize.Comma(int64(idx.Len())), humanize.Comma(int64(idx.Bounds().NumCells())), time.Since(start).Round(time.Millisecond))

	engLog := log.New(io.Discard, "", 0)
	if *verbose {
		engLog = log.New(os.Stderr, "[engine] ", log.LstdFlags|log.Lmicroseconds)
	}
	eng, err := engine.New(tune.EngineConfig(), idx, engLog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}

	half := tune.Worldgen.HalfExtent
	results, err := walk(eng, walkOpts{
		TicksPerLeg:  *ticks,
		Speed:        float32(*speed),
		CircleRadius: 4 * tune.Stream.SectorSize,
		Teleport:     spatial.Vec3{X: half / 2, Z: -half / 2},
	})
	for _, r := range results {
		fmt.Printf("%-9s ticks=%-5d spawned=%-9s destroyed=%-9s peak_live=%-9s max_step=%.3fms\n",
			r.Name, r.Ticks, humanize.Comma(int64(r.Spawned)), humanize.Comma(int64(r.Destroy)),
			humanize.Comma(int64(r.PeakLive)), r.MaxMS)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "FAIL", err)
		os.Exit(1)
	}
	fmt.Println("OK")
}

// walk drives eng along the scripted legs and checks the live set against the
// oracle after every tick.
func walk(eng *engine.Engine, o walkOpts) ([]legResult, error) {
	dt := 1.0 / float64(eng.TickRateHz())
	pos := eng.Config().InitialObserver
	var out []legResult
	for _, l := range script(o.Speed, o.TicksPerLeg, o.Teleport, o.CircleRadius) {
		res := legResult{Name: l.Name}
		legStart := pos
		for i := 0; i < l.Ticks; i++ {
			pos = l.At(legStart, i)
			r := eng.StepOnce(pos, dt)
			res.Ticks++
			res.Spawned += r.Apply.Spawned
			res.Destroy += r.Apply.Destroyed
			if r.LiveAgents > res.PeakLive {
				res.PeakLive = r.LiveAgents
			}
			if r.StepMS > res.MaxMS {
				res.MaxMS = r.StepMS
			}
			center, radius, ok := eng.Window()
			if !ok {
				out = append(out, res)
				return out, fmt.Errorf("%s tick %d: controller not tracking", l.Name, r.Tick)
			}
			if err := worldtest.Check(eng.Index(), worldtest.ViewOfStore(eng.Store(), center, radius)); err != nil {
				out = append(out, res)
				return out, fmt.Errorf("%s tick %d: %w", l.Name, r.Tick, err)
			}
		}
		out = append(out, res)
	}
	return out, nil
}
