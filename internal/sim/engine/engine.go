package engine

import (
	"errors"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"hordestream.ai/internal/sim/activity"
	"hordestream.ai/internal/sim/population"
	"hordestream.ai/internal/sim/spatial"
	"hordestream.ai/internal/sim/stream"
	"hordestream.ai/internal/sim/workers"
)

// Engine owns the streaming pipeline and runs it one tick at a time.
type Engine struct {
	cfg    Config
	logger *log.Logger
	idx    *spatial.Index

	disabled error

	pool   *workers.Pool
	ctrl   *stream.Controller
	store  *population.Store
	loader *population.Loader
	gate   *activity.Gate

	// Accessed only from the engine loop goroutine.
	observer    spatial.Vec3
	elapsed     float64
	subscribers map[string]chan []byte
	tickLogger  TickLogger
	perWorker   []behaviorCounts

	tick    atomic.Uint64
	metrics atomic.Value
	totals  Totals

	observerIn  chan spatial.Vec3
	cellReq     chan cellReq
	agentReq    chan agentReq
	snapshotReq chan snapshotReq
	subscribe   chan subscribeReq
	unsubscribe chan string

	stop     chan struct{}
	stopOnce sync.Once
}

// New builds an engine over idx. A configuration error does not fail
// construction: the returned engine is disabled, every tick is a no-op, and
// the error is returned and logged for operators.
func New(cfg Config, idx *spatial.Index, logger *log.Logger) (*Engine, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds)
	}
	e := &Engine{
		cfg:         cfg,
		logger:      logger,
		idx:         idx,
		observer:    cfg.InitialObserver,
		subscribers: map[string]chan []byte{},
		observerIn:  make(chan spatial.Vec3, 1),
		cellReq:     make(chan cellReq, 64),
		agentReq:    make(chan agentReq, 64),
		snapshotReq: make(chan snapshotReq, 8),
		subscribe:   make(chan subscribeReq, 16),
		unsubscribe: make(chan string, 16),
		stop:        make(chan struct{}),
	}
	if err := e.init(); err != nil {
		e.disabled = err
		e.logger.Printf("engine %s disabled: %v", cfg.ID, err)
		e.publishMetrics(TickReport{Disabled: true}, 0)
		return e, err
	}
	e.publishMetrics(TickReport{}, 0)
	return e, nil
}

func (e *Engine) init() error {
	if err := e.cfg.validate(e.idx); err != nil {
		return err
	}
	ctrl, err := stream.NewController(e.idx, e.cfg.Stream)
	if err != nil {
		return err
	}
	gate, err := activity.NewGate(e.cfg.Culling.Near, e.cfg.Culling.Far, e.cfg.Culling.Buckets)
	if err != nil {
		return err
	}
	e.pool = workers.New(e.cfg.Workers)
	e.ctrl = ctrl
	e.gate = gate
	e.store = population.NewStore()
	e.loader = population.NewLoader(e.idx, e.store, e.pool)
	e.perWorker = make([]behaviorCounts, e.pool.Size())
	return nil
}

func (e *Engine) ID() string {
	if e == nil {
		return ""
	}
	return e.cfg.ID
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) TickRateHz() int {
	if e == nil {
		return 0
	}
	return e.cfg.TickRateHz
}

func (e *Engine) CurrentTick() uint64 { return e.tick.Load() }

// Disabled reports whether a configuration error keeps the engine inert.
func (e *Engine) Disabled() bool { return e.disabled != nil }

// ConfigErr returns the configuration error that disabled the engine.
func (e *Engine) ConfigErr() error { return e.disabled }

func (e *Engine) Index() *spatial.Index { return e.idx }

func (e *Engine) SetTickLogger(l TickLogger) { e.tickLogger = l }

// Store returns the live set. Only the engine loop goroutine may use it while
// Run is active.
func (e *Engine) Store() *population.Store { return e.store }

// IsCellLoaded must be called from the engine loop goroutine (or without Run).
func (e *Engine) IsCellLoaded(c spatial.Cell) bool {
	if e.store == nil {
		return false
	}
	return e.store.IsCellLoaded(c)
}

// IsAgentActive must be called from the engine loop goroutine (or without Run).
func (e *Engine) IsAgentActive(id population.AgentID) (active, found bool) {
	if e.store == nil {
		return false, false
	}
	return e.store.IsAgentActive(id)
}

// Window returns the load window the live set currently covers.
func (e *Engine) Window() (center spatial.Cell, radius int, ok bool) {
	if e.ctrl == nil {
		return spatial.Cell{}, 0, false
	}
	return e.ctrl.Window()
}

// ErrDisabled is returned by queries on an engine disabled by a config error.
var ErrDisabled = errors.New("engine disabled")
