package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"hordestream.ai/internal/metrics"
	"hordestream.ai/internal/persistence/indexdb"
	"hordestream.ai/internal/persistence/indexfile"
	persistlog "hordestream.ai/internal/persistence/log"
	"hordestream.ai/internal/persistence/s3mirror"
	"hordestream.ai/internal/persistence/snapshot"
	"hordestream.ai/internal/sim/engine"
	"hordestream.ai/internal/sim/spatial"
	"hordestream.ai/internal/sim/tuning"
	"hordestream.ai/internal/transport/api"
	"hordestream.ai/internal/transport/observer"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	var (
		addr       = flag.String("addr", envString("HORDE_ADDR", ":8080"), "http listen address")
		tuningPath = flag.String("tuning", envString("HORDE_TUNING", "./configs/tuning.yaml"), "path to tuning.yaml (empty: built-in defaults)")
		dataDir    = flag.String("data", envString("HORDE_DATA", "./data"), "runtime data directory")
		indexCache = flag.String("index-cache", envString("HORDE_INDEX_CACHE", ""), "spatial index cache file (default: <data>/index/agents.idx.zst, \"off\" to disable)")
		sqlitePath = flag.String("sqlite", envString("HORDE_SQLITE", ""), "tick read model sqlite path (default: <data>/index/ticks.sqlite, \"off\" to disable)")
		logTicks   = flag.Bool("log-ticks", envBool("HORDE_LOG_TICKS", true), "write the zstd tick log under <data>/ticks")
		seed       = flag.Int64("seed", int64(envInt("HORDE_SEED", 0)), "override the tuning seed (0: keep)")
		snapOnExit = flag.Bool("snapshot-on-exit", envBool("HORDE_SNAPSHOT_ON_EXIT", false), "write a live set snapshot to <data>/snapshots on shutdown")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune := tuning.Defaults()
	if p := strings.TrimSpace(*tuningPath); p != "" {
		t, err := tuning.Load(p)
		switch {
		case err == nil:
			tune = t
		case errors.Is(err, os.ErrNotExist):
			logger.Printf("tuning not found (%s); using defaults", p)
		default:
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *seed != 0 {
		tune.Engine.Seed = *seed
	}

	cachePath := resolvePath(*indexCache, filepath.Join(*dataDir, "index", "agents.idx.zst"))
	start := time.Now()
	idx, res, err := indexfile.LoadOrBuild(cachePath, tune.WorldgenParams(), tune.Stream.SectorSize)
	if err != nil {
		logger.Fatalf("spatial index: %v", err)
	}
	if res.WriteErr != nil {
		logger.Printf("index cache write: %v", res.WriteErr)
	}
	logIndex(logger, idx, res, time.Since(start))

	mirror, err := buildMirror(*dataDir, logger)
	if err != nil {
		logger.Fatalf("s3 mirror: %v", err)
	}
	defer mirror.Close()
	if mirror != nil && cachePath != "" && !res.Hit && res.WriteErr == nil {
		mirror.Enqueue(cachePath)
	}

	ctx, cancel := signalContext()
	defer cancel()

	engLogger := log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds)
	eng, err := engine.New(tune.EngineConfig(), idx, engLogger)
	if err != nil {
		// Disabled engines still serve state so the failure is visible.
		logger.Printf("engine config: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	loggers := engine.MultiTickLogger{metrics.New(reg)}

	logOpts := persistlog.LoggerOptions{}
	if mirror != nil {
		mirror.Register(reg)
		// Minute segments keep the mirrored copy close behind.
		logOpts.RotateLayout = "2006-01-02-15-04"
		logOpts.OnClose = mirror.Enqueue
	}
	if *logTicks {
		tickLog := persistlog.NewTickLoggerWithOptions(*dataDir, logOpts)
		defer tickLog.Close()
		loggers = append(loggers, tickLog)
	}

	var ticks api.TickStore
	if dbPath := resolvePath(*sqlitePath, filepath.Join(*dataDir, "index", "ticks.sqlite")); dbPath != "" {
		db, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			logger.Fatalf("open tick index: %v", err)
		}
		defer db.Close()
		runID, err := db.StartRun(ctx, tune.Engine.ID, tune.Engine.Seed, idx.Len())
		if err != nil {
			logger.Fatalf("tick index: %v", err)
		}
		logger.Printf("tick index %s run=%s", dbPath, runID)
		loggers = append(loggers, db)
		ticks = db
	}
	eng.SetTickLogger(loggers)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("engine stopped: %v", err)
		}
	}()

	snapCfg := api.SnapshotConfig{
		Dir:      filepath.Join(*dataDir, "snapshots"),
		EngineID: tune.Engine.ID,
		Seed:     tune.Engine.Seed,
		Index:    res.Header.Params,
	}
	if mirror != nil {
		snapCfg.OnWrite = mirror.Enqueue
	}

	obs := observer.NewServer(eng, logger, observer.Options{
		PositionRate:  float64(envInt("HORDE_OBSERVER_RATE", 2*tune.Engine.TickRateHz)),
		PositionBurst: envInt("HORDE_OBSERVER_BURST", 10),
		AllowRemote:   envBool("HORDE_ALLOW_REMOTE_OBSERVERS", false),
	})
	router := api.NewRouter(api.RouterConfig{
		Engine:    eng,
		Ticks:     ticks,
		Gatherer:  reg,
		Observer:  obs.WSHandler(),
		Snapshots: snapCfg,
		ObserverControl: api.ObserverControl{
			AllowRemote: envBool("HORDE_ALLOW_REMOTE_OBSERVERS", false),
			Rate:        float64(envInt("HORDE_OBSERVER_RATE", 2*tune.Engine.TickRateHz)),
			Burst:       envInt("HORDE_OBSERVER_BURST", 10),
		},
		DisableLogging: !envBool("HORDE_HTTP_LOG", false),
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s engine=%s tick_rate=%dHz", *addr, eng.ID(), eng.TickRateHz())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	eng.Stop()
	<-runDone
	if *snapOnExit && !eng.Disabled() {
		writeExitSnapshot(logger, eng, snapCfg)
	}

	m := eng.Metrics()
	logger.Printf("stopped at tick %s: spawned=%s destroyed=%s",
		humanize.Comma(int64(m.Tick)), humanize.Comma(int64(m.Totals.Spawned)), humanize.Comma(int64(m.Totals.Destroyed)))
}

func logIndex(logger *log.Logger, idx *spatial.Index, res indexfile.CacheResult, took time.Duration) {
	b := idx.Bounds()
	source := "built"
	if res.Hit {
		source = "cache"
	}
	logger.Printf("spatial index (%s in %s): %s agents in %s cells (%dx%d), dropped out_of_bounds=%s non_finite=%s",
		source, took.Round(time.Millisecond),
		humanize.Comma(int64(idx.Len())), humanize.Comma(int64(b.NumCells())), b.Size.X, b.Size.Y,
		humanize.Comma(int64(res.Stats.OutOfBounds)), humanize.Comma(int64(res.Stats.NonFinite)))
	// Positions are three float32 per agent plus two int32 per cell.
	approx := uint64(idx.Len())*12 + uint64(b.NumCells())*8
	logger.Printf("spatial index memory ~%s", humanize.IBytes(approx))
}

// writeExitSnapshot runs after the engine loop has returned.
func writeExitSnapshot(logger *log.Logger, eng *engine.Engine, cfg api.SnapshotConfig) {
	snap, err := snapshot.FromEngine(eng.Snapshot(0), cfg.EngineID, cfg.Seed, cfg.Index)
	if err != nil {
		logger.Printf("exit snapshot: %v", err)
		return
	}
	path := filepath.Join(cfg.Dir, snapshot.FileName(snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Printf("exit snapshot: %v", err)
		return
	}
	logger.Printf("exit snapshot %s: %s agents in %s cells", path,
		humanize.Comma(int64(len(snap.Agents))), humanize.Comma(int64(len(snap.Cells))))
	if cfg.OnWrite != nil {
		cfg.OnWrite(path)
	}
}

// buildMirror returns nil unless HORDE_S3_MIRROR is set.
func buildMirror(dataDir string, logger *log.Logger) (*s3mirror.Mirror, error) {
	if !envBool("HORDE_S3_MIRROR", false) {
		return nil, nil
	}
	client, err := s3mirror.NewClient(s3mirror.ClientConfig{
		Endpoint:  os.Getenv("HORDE_S3_ENDPOINT"),
		Bucket:    os.Getenv("HORDE_S3_BUCKET"),
		Region:    os.Getenv("HORDE_S3_REGION"),
		AccessKey: os.Getenv("HORDE_S3_ACCESS_KEY_ID"),
		SecretKey: os.Getenv("HORDE_S3_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, err
	}
	mlog := log.New(os.Stdout, "[mirror] ", log.LstdFlags|log.Lmicroseconds)
	m := s3mirror.New(client, dataDir, s3mirror.Options{
		Prefix:  os.Getenv("HORDE_S3_PREFIX"),
		Workers: envInt("HORDE_S3_UPLOAD_WORKERS", 2),
	}, mlog)
	logger.Printf("s3 mirror enabled bucket=%s", os.Getenv("HORDE_S3_BUCKET"))
	return m, nil
}

// resolvePath maps "" to def and "off" to no path.
func resolvePath(v, def string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "":
		return def
	case "off", "none", "disabled":
		return ""
	}
	return v
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
