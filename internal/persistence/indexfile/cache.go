package indexfile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"hordestream.ai/internal/sim/spatial"
	"hordestream.ai/internal/sim/worldgen"
)

// CacheResult describes how LoadOrBuild produced its index.
type CacheResult struct {
	Hit    bool
	Header Header
	Stats  spatial.BuildStats
	// WriteErr is a failed cache write; the built index is still usable.
	WriteErr error
}

// HeaderFor is the cache header expected for p at cellSize.
func HeaderFor(p worldgen.Params, cellSize float32) Header {
	b, _ := json.Marshal(p)
	sum := sha256.Sum256(b)
	return Header{
		Format:   Format,
		Version:  Version,
		Seed:     p.Seed,
		Count:    p.Count,
		Mode:     p.Mode,
		CellSize: cellSize,
		Params:   hex.EncodeToString(sum[:8]),
	}
}

// LoadOrBuild reads the cached index at path when it was produced from the
// same inputs, otherwise generates, builds and writes it. An empty path skips
// the cache.
func LoadOrBuild(path string, p worldgen.Params, cellSize float32) (*spatial.Index, CacheResult, error) {
	want := HeaderFor(p, cellSize)
	if path != "" {
		if h, err := ReadHeader(path); err == nil && h.Matches(want) {
			idx, h, err := Read(path)
			if err == nil {
				return idx, CacheResult{Hit: true, Header: h, Stats: spatial.BuildStats{Input: idx.Len(), Indexed: idx.Len()}}, nil
			}
			// Corrupt cache: rebuild below.
		} else if err != nil && !os.IsNotExist(err) {
			_ = os.Remove(path)
		}
	}

	positions, err := worldgen.Generate(p)
	if err != nil {
		return nil, CacheResult{}, err
	}
	idx, stats, err := spatial.Build(positions, cellSize, spatial.CenteredBounds(p.HalfExtent, cellSize))
	if err != nil {
		return nil, CacheResult{}, fmt.Errorf("build index: %w", err)
	}
	res := CacheResult{Header: want, Stats: stats}
	res.Header.Agents = idx.Len()
	if path != "" {
		res.WriteErr = Write(path, idx, want)
	}
	return idx, res, nil
}
