package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	persistlog "hordestream.ai/internal/persistence/log"
	"hordestream.ai/internal/sim/engine"
)

func main() {
	var (
		dataDir  = flag.String("data", "./data", "runtime data directory containing ticks/ticks-*.jsonl.zst")
		file     = flag.String("file", "", "verify a single tick log file instead of the data dir")
		fromTick = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		maxViol  = flag.Int("max_violations", 50, "stop recording violations after this many (0: unlimited)")
		snapPath = flag.String("snapshot", "", "verify a live set snapshot against -index-cache instead of tick logs")
		idxPath  = flag.String("index-cache", "./data/index/agents.idx.zst", "spatial index cache used with -snapshot")
	)
	flag.Parse()

	if *snapPath != "" {
		if err := verifySnapshot(*snapPath, *idxPath); err != nil {
			fmt.Fprintln(os.Stderr, "FAIL", err)
			os.Exit(1)
		}
		fmt.Println("OK")
		return
	}

	files := []string{*file}
	if *file == "" {
		var err error
		files, err = persistlog.TickFiles(*dataDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list tick logs:", err)
			os.Exit(1)
		}
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick logs found")
		os.Exit(2)
	}

	v := &verifier{fromTick: *fromTick, toTick: *toTick, maxViolations: *maxViol}
	for _, f := range files {
		name := filepath.Base(f)
		err := persistlog.ReadTicks(f, func(e engine.TickEntry) error {
			v.add(name, e)
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", name, err)
			os.Exit(1)
		}
	}

	s := v.sum
	avg := 0.0
	if s.Entries > 0 {
		avg = s.SumStepMS / float64(s.Entries)
	}
	fmt.Printf("files=%d entries=%s runs=%d gaps=%d disabled=%d\n",
		len(files), humanize.Comma(int64(s.Entries)), s.Runs, s.Gaps, s.Disabled)
	fmt.Printf("spawned=%s destroyed=%s promoted=%s swept=%s\n",
		humanize.Comma(int64(s.Spawned)), humanize.Comma(int64(s.Destroyed)),
		humanize.Comma(int64(s.Promoted)), humanize.Comma(int64(s.Swept)))
	fmt.Printf("peak_live=%s peak_cells=%s step_ms avg=%.3f max=%.3f\n",
		humanize.Comma(int64(s.PeakLive)), humanize.Comma(int64(s.PeakCells)), avg, s.MaxStepMS)

	if len(v.violations) > 0 {
		for _, viol := range v.violations {
			fmt.Fprintln(os.Stderr, "FAIL", viol.String())
		}
		os.Exit(1)
	}
	fmt.Println("OK")
}
