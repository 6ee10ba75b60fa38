package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hordestream.ai/internal/metrics"
	"hordestream.ai/internal/persistence/indexdb"
	"hordestream.ai/internal/persistence/snapshot"
	"hordestream.ai/internal/sim/engine"
	"hordestream.ai/internal/sim/population"
	"hordestream.ai/internal/sim/spatial"
)

type fakeEngine struct {
	disabled bool
	loaded   map[spatial.Cell]bool
	agents   map[population.AgentID]bool
	observer []spatial.Vec3
}

func (f *fakeEngine) Metrics() engine.Metrics {
	return engine.Metrics{Tick: 42, LiveAgents: len(f.agents), Disabled: f.disabled}
}

func (f *fakeEngine) RequestCellLoaded(_ context.Context, c spatial.Cell) (bool, error) {
	if f.disabled {
		return false, engine.ErrDisabled
	}
	return f.loaded[c], nil
}

func (f *fakeEngine) RequestAgentActive(_ context.Context, id population.AgentID) (bool, bool, error) {
	if f.disabled {
		return false, false, engine.ErrDisabled
	}
	active, ok := f.agents[id]
	return active, ok, nil
}

func (f *fakeEngine) RequestSnapshot(_ context.Context, maxAgents int) (engine.Snapshot, error) {
	s := engine.Snapshot{Tick: 42, Total: len(f.agents)}
	for id, active := range f.agents {
		if maxAgents > 0 && len(s.Agents) >= maxAgents {
			s.Limited = true
			break
		}
		s.Agents = append(s.Agents, population.Agent{ID: id, Active: active})
	}
	return s, nil
}

func (f *fakeEngine) SetObserver(p spatial.Vec3) { f.observer = append(f.observer, p) }

func newFake() *fakeEngine {
	return &fakeEngine{
		loaded: map[spatial.Cell]bool{{X: 1, Y: -2}: true},
		agents: map[population.AgentID]bool{1: true, 2: false, 3: true},
	}
}

func get(t *testing.T, srv *httptest.Server, path string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func TestRouter_HealthAndState(t *testing.T) {
	srv := httptest.NewServer(NewRouter(RouterConfig{Engine: newFake(), DisableLogging: true, Gatherer: prometheus.NewRegistry()}))
	defer srv.Close()

	code, body := get(t, srv, "/healthz")
	if code != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz=%d %q", code, body)
	}
	code, body = get(t, srv, "/v1/state")
	if code != http.StatusOK {
		t.Fatalf("state=%d", code)
	}
	var m engine.Metrics
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Tick != 42 || m.LiveAgents != 3 {
		t.Fatalf("metrics=%+v", m)
	}
}

func TestRouter_CellAndAgentQueries(t *testing.T) {
	srv := httptest.NewServer(NewRouter(RouterConfig{Engine: newFake(), DisableLogging: true}))
	defer srv.Close()

	cases := []struct {
		path string
		code int
		want string
	}{
		{"/v1/cells/1/-2", http.StatusOK, `"loaded":true`},
		{"/v1/cells/0/0", http.StatusOK, `"loaded":false`},
		{"/v1/cells/a/0", http.StatusBadRequest, `"error"`},
		{"/v1/agents/1", http.StatusOK, `"active":true`},
		{"/v1/agents/2", http.StatusOK, `"active":false`},
		{"/v1/agents/99", http.StatusNotFound, `agent not live`},
		{"/v1/agents/x", http.StatusBadRequest, `bad agent id`},
		{"/v1/agents?limit=2", http.StatusOK, `"limited":true`},
		{"/v1/agents?limit=0", http.StatusBadRequest, `bad limit`},
	}
	for _, tc := range cases {
		code, body := get(t, srv, tc.path)
		if code != tc.code || !strings.Contains(string(body), tc.want) {
			t.Fatalf("%s: code=%d body=%s want=%d %s", tc.path, code, body, tc.code, tc.want)
		}
	}
}

func TestRouter_DisabledEngine(t *testing.T) {
	f := newFake()
	f.disabled = true
	srv := httptest.NewServer(NewRouter(RouterConfig{Engine: f, DisableLogging: true}))
	defer srv.Close()

	if code, _ := get(t, srv, "/v1/cells/0/0"); code != http.StatusServiceUnavailable {
		t.Fatalf("cells code=%d want=503", code)
	}
	if code, _ := get(t, srv, "/v1/agents/1"); code != http.StatusServiceUnavailable {
		t.Fatalf("agents code=%d want=503", code)
	}
}

func TestRouter_PostObserver(t *testing.T) {
	f := newFake()
	srv := httptest.NewServer(NewRouter(RouterConfig{Engine: f, DisableLogging: true}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/observer", "application/json", strings.NewReader(`{"pos":[64,0,-32]}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("code=%d want=202", resp.StatusCode)
	}
	if len(f.observer) != 1 || f.observer[0] != (spatial.Vec3{X: 64, Z: -32}) {
		t.Fatalf("observer=%+v", f.observer)
	}

	resp, err = http.Post(srv.URL+"/v1/observer", "application/json", strings.NewReader(`{"pos":"nope"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("code=%d want=400", resp.StatusCode)
	}
}

func TestRouter_ObserverControl(t *testing.T) {
	post := func(h http.Handler, remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/observer", strings.NewReader(`{"pos":[9000,0,9000]}`))
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	f := newFake()
	h := NewRouter(RouterConfig{Engine: f, DisableLogging: true})
	if code := post(h, "203.0.113.7:4444"); code != http.StatusForbidden {
		t.Fatalf("remote code=%d want=403", code)
	}
	if len(f.observer) != 0 {
		t.Fatalf("remote client moved the observer: %+v", f.observer)
	}
	if code := post(h, "[::1]:5000"); code != http.StatusAccepted {
		t.Fatalf("loopback code=%d want=202", code)
	}

	f = newFake()
	h = NewRouter(RouterConfig{Engine: f, DisableLogging: true, ObserverControl: ObserverControl{AllowRemote: true}})
	if code := post(h, "203.0.113.7:4444"); code != http.StatusAccepted || len(f.observer) != 1 {
		t.Fatalf("allowed remote code=%d observer=%+v", code, f.observer)
	}
}

func TestRouter_ObserverRateLimit(t *testing.T) {
	f := newFake()
	h := NewRouter(RouterConfig{Engine: f, DisableLogging: true, ObserverControl: ObserverControl{Rate: 0.001, Burst: 2}})
	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/observer", strings.NewReader(`{"pos":[1,0,1]}`))
		req.RemoteAddr = "127.0.0.1:9000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	want := []int{http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes=%v want=%v", codes, want)
		}
	}
	if len(f.observer) != 2 {
		t.Fatalf("observer updates=%d want=2", len(f.observer))
	}
}

func TestRouter_TicksAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	col := metrics.New(reg)

	db, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "ticks.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	srv := httptest.NewServer(NewRouter(RouterConfig{Engine: newFake(), Ticks: db, Gatherer: reg, DisableLogging: true}))
	defer srv.Close()

	if code, _ := get(t, srv, "/v1/ticks"); code != http.StatusServiceUnavailable {
		t.Fatalf("ticks before run code=%d want=503", code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.StartRun(ctx, "OVERWORLD", 7, 100); err != nil {
		t.Fatalf("start run: %v", err)
	}
	log := engine.MultiTickLogger{db, col}
	for tick := uint64(0); tick < 5; tick++ {
		e := engine.TickEntry{EngineID: "OVERWORLD", Tick: tick, LiveAgents: 10, LoadedCells: 4}
		e.Spawned = 2
		if err := log.WriteTick(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := db.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	code, body := get(t, srv, "/v1/ticks?n=2")
	if code != http.StatusOK {
		t.Fatalf("ticks code=%d body=%s", code, body)
	}
	var out struct {
		RunID string            `json:"run_id"`
		Ticks []indexdb.TickRow `json:"ticks"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.RunID != db.RunID() || len(out.Ticks) != 2 || out.Ticks[0].Tick != 4 {
		t.Fatalf("ticks=%+v", out)
	}

	code, body = get(t, srv, "/v1/ticks/totals")
	if code != http.StatusOK || !strings.Contains(string(body), `"spawned":10`) {
		t.Fatalf("totals code=%d body=%s", code, body)
	}

	code, body = get(t, srv, "/metrics")
	if code != http.StatusOK || !strings.Contains(string(body), `hordestream_spawned_total{engine="OVERWORLD"} 10`) {
		t.Fatalf("metrics code=%d body=%s", code, body)
	}
}

func TestRouter_Snapshot(t *testing.T) {
	f := newFake()
	srv := httptest.NewServer(NewRouter(RouterConfig{Engine: f, DisableLogging: true}))
	resp, err := http.Post(srv.URL+"/v1/snapshot", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	srv.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured code=%d want=503", resp.StatusCode)
	}

	dir := t.TempDir()
	srv = httptest.NewServer(NewRouter(RouterConfig{Engine: f, DisableLogging: true, Snapshots: SnapshotConfig{Dir: dir, EngineID: "W"}}))
	defer srv.Close()
	resp, err = http.Post(srv.URL+"/v1/snapshot", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		OK     bool   `json:"ok"`
		Path   string `json:"path"`
		Agents int    `json:"agents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.OK || out.Agents != 3 || filepath.Dir(out.Path) != dir {
		t.Fatalf("resp=%+v", out)
	}
	snap, err := snapshot.ReadSnapshot(out.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if snap.Header.EngineID != "W" || snap.Header.Tick != 42 || len(snap.Agents) != 3 {
		t.Fatalf("snapshot header=%+v agents=%d", snap.Header, len(snap.Agents))
	}
}
