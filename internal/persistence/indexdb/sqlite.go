package indexdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"hordestream.ai/internal/sim/engine"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("indexdb: closed")

// SQLiteIndex is a secondary read model of the tick log. Writes are queued and
// applied by a single goroutine; a full queue drops entries instead of stalling
// the engine loop.
type SQLiteIndex struct {
	db *sqlx.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
	runID  atomic.Value // string

	dropTick    atomic.Uint64
	written     atomic.Uint64
	commits     atomic.Uint64
	writeErrors atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSync
)

type req struct {
	kind   reqKind
	run    string
	tick   engine.TickEntry
	synced chan struct{}
}

// Stats are queue and writer counters.
type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTickTotal uint64 `json:"drop_tick_total"`
	WrittenTotal  uint64 `json:"written_total"`
	CommitTotal   uint64 `json:"commit_total"`
	ErrorTotal    uint64 `json:"error_total"`
}

// RunRow is one engine run.
type RunRow struct {
	ID       string `db:"id" json:"id"`
	EngineID string `db:"engine_id" json:"engine_id"`
	Started  string `db:"started" json:"started"`
	Seed     int64  `db:"seed" json:"seed"`
	Agents   int    `db:"agents" json:"agents"`
}

// TickRow is the queryable projection of one TickEntry.
type TickRow struct {
	RunID        string  `db:"run_id" json:"run_id"`
	Tick         int64   `db:"tick" json:"tick"`
	CenterX      int     `db:"center_x" json:"center_x"`
	CenterY      int     `db:"center_y" json:"center_y"`
	Radius       int     `db:"radius" json:"radius"`
	LoadedCells  int     `db:"loaded_cells" json:"loaded_cells"`
	LiveAgents   int     `db:"live_agents" json:"live_agents"`
	ActiveAgents int     `db:"active_agents" json:"active_agents"`
	Spawned      int     `db:"spawned" json:"spawned"`
	Destroyed    int     `db:"destroyed" json:"destroyed"`
	StepMS       float64 `db:"step_ms" json:"step_ms"`
}

// RunTotals aggregates the ticks recorded for one run.
type RunTotals struct {
	Ticks         int64   `db:"ticks" json:"ticks"`
	Spawned       int64   `db:"spawned" json:"spawned"`
	Destroyed     int64   `db:"destroyed" json:"destroyed"`
	PeakLive      int64   `db:"peak_live" json:"peak_live"`
	PeakLoaded    int64   `db:"peak_loaded" json:"peak_loaded"`
	AvgStepMS     float64 `db:"avg_step_ms" json:"avg_step_ms"`
	DisabledTicks int64   `db:"disabled_ticks" json:"disabled_ticks"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets HTTP reads run on their own connection next to the writer tx.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.runID.Store("")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			engine_id TEXT NOT NULL,
			started TEXT NOT NULL,
			seed INTEGER NOT NULL,
			agents INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL REFERENCES runs(id),
			tick INTEGER NOT NULL,
			disabled INTEGER NOT NULL,
			center_x INTEGER NOT NULL,
			center_y INTEGER NOT NULL,
			radius INTEGER NOT NULL,
			loaded_cells INTEGER NOT NULL,
			live_agents INTEGER NOT NULL,
			active_agents INTEGER NOT NULL,
			spawned INTEGER NOT NULL,
			destroyed INTEGER NOT NULL,
			step_ms REAL NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// StartRun records a new run and tags subsequent ticks with its id.
func (s *SQLiteIndex) StartRun(ctx context.Context, engineID string, seed int64, agents int) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id,engine_id,started,seed,agents) VALUES(?,?,?,?,?)`,
		id, engineID, time.Now().UTC().Format(time.RFC3339Nano), seed, agents)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	s.runID.Store(id)
	return id, nil
}

// RunID is the id of the current run, empty before StartRun.
func (s *SQLiteIndex) RunID() string {
	if s == nil {
		return ""
	}
	v, _ := s.runID.Load().(string)
	return v
}

func (s *SQLiteIndex) WriteTick(entry engine.TickEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	run := s.RunID()
	if run == "" {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, run: run, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

// Sync blocks until every queued entry is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, synced: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTickTotal: s.dropTick.Load(),
		WrittenTotal:  s.written.Load(),
		CommitTotal:   s.commits.Load(),
		ErrorTotal:    s.writeErrors.Load(),
	}
}

func (s *SQLiteIndex) Runs(ctx context.Context) ([]RunRow, error) {
	var rows []RunRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id,engine_id,started,seed,agents FROM runs ORDER BY started DESC`)
	return rows, err
}

// RecentTicks returns up to n most recent ticks of a run, newest first.
func (s *SQLiteIndex) RecentTicks(ctx context.Context, runID string, n int) ([]TickRow, error) {
	if n <= 0 {
		n = 100
	}
	var rows []TickRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT run_id,tick,center_x,center_y,radius,loaded_cells,live_agents,active_agents,spawned,destroyed,step_ms
		FROM ticks WHERE run_id = ? ORDER BY tick DESC LIMIT ?`, runID, n)
	return rows, err
}

func (s *SQLiteIndex) RunTotals(ctx context.Context, runID string) (RunTotals, error) {
	var t RunTotals
	err := s.db.GetContext(ctx, &t, `
		SELECT COUNT(*) AS ticks,
			COALESCE(SUM(spawned),0) AS spawned,
			COALESCE(SUM(destroyed),0) AS destroyed,
			COALESCE(MAX(live_agents),0) AS peak_live,
			COALESCE(MAX(loaded_cells),0) AS peak_loaded,
			COALESCE(AVG(step_ms),0) AS avg_step_ms,
			COALESCE(SUM(disabled),0) AS disabled_ticks
		FROM ticks WHERE run_id = ?`, runID)
	return t, err
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Preparex(`INSERT OR REPLACE INTO ticks(
		run_id,tick,disabled,center_x,center_y,radius,loaded_cells,live_agents,active_agents,spawned,destroyed,step_ms,raw_json
	) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
	}()

	var (
		tx            *sqlx.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			s.writeErrors.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		} else {
			s.commits.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			flushIfNeeded()
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			switch r.kind {
			case reqSync:
				commit()
				close(r.synced)
			case reqTick:
				begin()
				if tx == nil || insertTick == nil {
					s.writeErrors.Add(1)
					continue
				}
				e := r.tick
				b, _ := json.Marshal(e)
				disabled := 0
				if e.Disabled {
					disabled = 1
				}
				if _, err := tx.Stmtx(insertTick).Exec(
					r.run, int64(e.Tick), disabled,
					e.Center.X, e.Center.Y, e.Radius,
					e.LoadedCells, e.LiveAgents, e.ActiveAgents,
					e.Spawned, e.Destroyed, e.StepMS,
					string(b),
				); err != nil {
					s.writeErrors.Add(1)
					rollback()
					continue
				}
				opCount++
				s.written.Add(1)
				flushIfNeeded()
			}
		}
	}
}
