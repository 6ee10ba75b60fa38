package engine

import "hordestream.ai/internal/sim/spatial"

type TickLogger interface {
	WriteTick(entry TickEntry) error
}

// TickEntry is one tick's record for the tick log and read models.
type TickEntry struct {
	EngineID string       `json:"engine_id"`
	Tick     uint64       `json:"tick"`
	Disabled bool         `json:"disabled,omitempty"`
	Observer spatial.Vec3 `json:"observer"`
	Center   spatial.Cell `json:"center"`
	Radius   int          `json:"radius"`

	TickCounts

	LoadedCells    int     `json:"loaded_cells"`
	LiveAgents     int     `json:"live_agents"`
	ActiveAgents   int     `json:"active_agents"`
	RenderedAgents int     `json:"rendered_agents"`
	StepMS         float64 `json:"step_ms"`
}

// MultiTickLogger fans one entry out to several loggers and returns the first error.
type MultiTickLogger []TickLogger

func (m MultiTickLogger) WriteTick(entry TickEntry) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteTick(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}
