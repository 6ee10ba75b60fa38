package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hordestream.ai/internal/sim/engine"
	"hordestream.ai/internal/sim/population"
	"hordestream.ai/internal/sim/spatial"
)

const (
	defaultAgentLimit = 256
	maxAgentLimit     = 10000
	defaultTickLimit  = 100
	maxTickLimit      = 5000
)

func (h *handlers) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.engine.Metrics())
}

func (h *handlers) handleCell(w http.ResponseWriter, r *http.Request) {
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if errX != nil || errY != nil {
		writeError(w, "bad cell", http.StatusBadRequest)
		return
	}
	loaded, err := h.engine.RequestCellLoaded(r.Context(), spatial.Cell{X: x, Y: y})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, map[string]any{"cell": [2]int{x, y}, "loaded": loaded})
}

func (h *handlers) handleAgent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, "bad agent id", http.StatusBadRequest)
		return
	}
	active, found, err := h.engine.RequestAgentActive(r.Context(), population.AgentID(id))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !found {
		writeError(w, "agent not live", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"id": id, "active": active})
}

func (h *handlers) handleAgents(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defaultAgentLimit, maxAgentLimit)
	if !ok {
		writeError(w, "bad limit", http.StatusBadRequest)
		return
	}
	snap, err := h.engine.RequestSnapshot(r.Context(), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, snap)
}

func (h *handlers) handleTicks(w http.ResponseWriter, r *http.Request) {
	if h.ticks == nil || h.ticks.RunID() == "" {
		writeError(w, "tick store not configured", http.StatusServiceUnavailable)
		return
	}
	n, ok := queryInt(r, "n", defaultTickLimit, maxTickLimit)
	if !ok {
		writeError(w, "bad n", http.StatusBadRequest)
		return
	}
	run := r.URL.Query().Get("run")
	if run == "" {
		run = h.ticks.RunID()
	}
	rows, err := h.ticks.RecentTicks(r.Context(), run, n)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"run_id": run, "ticks": rows})
}

func (h *handlers) handleTotals(w http.ResponseWriter, r *http.Request) {
	if h.ticks == nil || h.ticks.RunID() == "" {
		writeError(w, "tick store not configured", http.StatusServiceUnavailable)
		return
	}
	run := r.URL.Query().Get("run")
	if run == "" {
		run = h.ticks.RunID()
	}
	tot, err := h.ticks.RunTotals(r.Context(), run)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"run_id": run, "totals": tot})
}

func (h *handlers) handleObserver(w http.ResponseWriter, r *http.Request) {
	if !h.allowRemoteObserver && !isLoopbackRemote(r.RemoteAddr) {
		writeError(w, "forbidden", http.StatusForbidden)
		return
	}
	if !h.observerLimit.Allow() {
		writeError(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	var req struct {
		Pos [3]float32 `json:"pos"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	p := spatial.Vec3{X: req.Pos[0], Y: req.Pos[1], Z: req.Pos[2]}
	if !p.Finite() {
		writeError(w, "position must be finite", http.StatusBadRequest)
		return
	}
	h.engine.SetObserver(p)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]any{"pos": req.Pos})
}

func queryInt(r *http.Request, key string, def, max int) (int, bool) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrDisabled) {
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeError(w, err.Error(), http.StatusGatewayTimeout)
}

func writeJSON(w http.ResponseWriter, data any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
