package stream

import (
	"fmt"
	"math"

	"hordestream.ai/internal/sim/logic/mathx"
	"hordestream.ai/internal/sim/spatial"
)

// Settings are the observer streaming parameters. They are read-only once the
// controller is built.
type Settings struct {
	// SectorSize is the world edge length of one cell. Zero means "use the index".
	SectorSize            float32 `json:"sector_size" yaml:"sector_size"`
	LoadRadiusCells       int     `json:"load_radius_cells" yaml:"load_radius_cells"`
	VisibleMarginCells    int     `json:"visible_margin_cells" yaml:"visible_margin_cells"`
	HardUnloadRadiusCells int     `json:"hard_unload_radius_cells" yaml:"hard_unload_radius_cells"`
	LookaheadSeconds      float32 `json:"lookahead_seconds" yaml:"lookahead_seconds"`
	// MaxLookaheadCells caps radius inflation. Zero means LoadRadiusCells.
	MaxLookaheadCells int `json:"max_lookahead_cells" yaml:"max_lookahead_cells"`
}

func (s Settings) VisibleRadius() int {
	return mathx.MaxInt(1, s.LoadRadiusCells-s.VisibleMarginCells)
}

// HardRadius is the distance past which live cells are always reclaimed.
func (s Settings) HardRadius() int {
	return mathx.MaxInt(s.HardUnloadRadiusCells, s.LoadRadiusCells+1)
}

func (s Settings) maxLookahead() int {
	if s.MaxLookaheadCells > 0 {
		return s.MaxLookaheadCells
	}
	return s.LoadRadiusCells
}

func (s Settings) Validate(cellSize float32) error {
	if !mathx.IsFinite32(cellSize) || cellSize <= 0 {
		return fmt.Errorf("%w: cell size %v", spatial.ErrConfig, cellSize)
	}
	if s.SectorSize != 0 && s.SectorSize != cellSize {
		return fmt.Errorf("%w: sector_size %v does not match index cell size %v", spatial.ErrConfig, s.SectorSize, cellSize)
	}
	if s.LoadRadiusCells <= 0 {
		return fmt.Errorf("%w: load_radius_cells must be > 0 (got %d)", spatial.ErrConfig, s.LoadRadiusCells)
	}
	if s.VisibleMarginCells < 0 {
		return fmt.Errorf("%w: visible_margin_cells must be >= 0", spatial.ErrConfig)
	}
	if s.HardUnloadRadiusCells < 0 {
		return fmt.Errorf("%w: hard_unload_radius_cells must be >= 0", spatial.ErrConfig)
	}
	if s.MaxLookaheadCells < 0 {
		return fmt.Errorf("%w: max_lookahead_cells must be >= 0", spatial.ErrConfig)
	}
	if !mathx.IsFinite32(s.LookaheadSeconds) || s.LookaheadSeconds < 0 {
		return fmt.Errorf("%w: lookahead_seconds must be >= 0", spatial.ErrConfig)
	}
	return nil
}

// lookaheadCells converts an observer speed into extra load rings.
func (s Settings) lookaheadCells(speed float64, cellSize float32) int {
	if s.LookaheadSeconds <= 0 || !(speed > 0) || math.IsInf(speed, 0) {
		return 0
	}
	n := math.Ceil(speed * float64(s.LookaheadSeconds) / float64(cellSize))
	if max := float64(s.maxLookahead()); n > max {
		return int(max)
	}
	return int(n)
}
