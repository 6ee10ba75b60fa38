package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"hordestream.ai/internal/persistence/indexdb"
	"hordestream.ai/internal/sim/engine"
	"hordestream.ai/internal/sim/population"
	"hordestream.ai/internal/sim/spatial"
)

// Engine is the engine surface the HTTP API reads. Queries go through the
// engine loop; Metrics is a published copy.
type Engine interface {
	Metrics() engine.Metrics
	RequestCellLoaded(ctx context.Context, c spatial.Cell) (bool, error)
	RequestAgentActive(ctx context.Context, id population.AgentID) (active, found bool, err error)
	RequestSnapshot(ctx context.Context, maxAgents int) (engine.Snapshot, error)
	SetObserver(p spatial.Vec3)
}

// TickStore serves recorded ticks. It is optional.
type TickStore interface {
	RunID() string
	RecentTicks(ctx context.Context, runID string, n int) ([]indexdb.TickRow, error)
	RunTotals(ctx context.Context, runID string) (indexdb.RunTotals, error)
}

type RouterConfig struct {
	Engine Engine
	Ticks  TickStore

	// Gatherer backs /metrics. Nil uses the default gatherer.
	Gatherer prometheus.Gatherer

	// Observer, when set, is mounted at /v1/observe/ws.
	Observer http.Handler

	// Snapshots enables POST /v1/snapshot for loopback clients.
	Snapshots SnapshotConfig

	// ObserverControl gates POST /v1/observer.
	ObserverControl ObserverControl

	CORSOrigins    []string
	DisableLogging bool
}

type SnapshotConfig struct {
	Dir      string
	EngineID string
	Seed     int64
	// Index is the spatial index fingerprint recorded in each snapshot.
	Index string
	// OnWrite, when set, receives the path of every snapshot written.
	OnWrite func(path string)
}

// ObserverControl limits who may move the observer over HTTP. Remote clients
// are refused unless AllowRemote is set; all callers share one rate limit.
type ObserverControl struct {
	AllowRemote bool
	Rate        float64 // positions per second, default 60
	Burst       int     // default 10
}

type handlers struct {
	engine Engine
	ticks  TickStore
	snaps  SnapshotConfig

	allowRemoteObserver bool
	observerLimit       *rate.Limiter
}

// NewRouter builds the HTTP API. It starts no goroutines.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	g := cfg.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	oc := cfg.ObserverControl
	if oc.Rate <= 0 {
		oc.Rate = 60
	}
	if oc.Burst <= 0 {
		oc.Burst = 10
	}
	h := &handlers{
		engine:              cfg.Engine,
		ticks:               cfg.Ticks,
		snaps:               cfg.Snapshots,
		allowRemoteObserver: oc.AllowRemote,
		observerLimit:       rate.NewLimiter(rate.Limit(oc.Rate), oc.Burst),
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", h.handleState)
		r.Get("/cells/{x}/{y}", h.handleCell)
		r.Get("/agents", h.handleAgents)
		r.Get("/agents/{id}", h.handleAgent)
		r.Get("/ticks", h.handleTicks)
		r.Get("/ticks/totals", h.handleTotals)
		r.Post("/observer", h.handleObserver)
		r.Post("/snapshot", h.handleSnapshot)
		if cfg.Observer != nil {
			r.Handle("/observe/ws", cfg.Observer)
		}
	})
	return r
}
