package indexfile

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"hordestream.ai/internal/sim/spatial"
)

const (
	Format  = "hordestream.index"
	Version = 1
)

type Header struct {
	Format   string  `json:"format"`
	Version  int     `json:"version"`
	Seed     int64   `json:"seed"`
	Count    int     `json:"count"`
	Mode     string  `json:"mode,omitempty"`
	CellSize float32 `json:"cell_size"`
	Agents   int     `json:"agents"`
	// Params fingerprints every generator input.
	Params string `json:"params,omitempty"`
}

// Matches reports whether a cached header was produced from the same inputs.
func (h Header) Matches(o Header) bool {
	return h.Format == o.Format && h.Version == o.Version && h.Seed == o.Seed &&
		h.Count == o.Count && h.Mode == o.Mode && h.CellSize == o.CellSize && h.Params == o.Params
}

type indexV1 struct {
	Header    Header
	Bounds    spatial.Bounds
	CellSize  float32
	Start     []int32
	Len       []int32
	Positions []spatial.Vec3
}

// Write stores idx as zstd(JSON header line + gob body).
func Write(path string, idx *spatial.Index, h Header) (err error) {
	h.Format = Format
	h.Version = Version
	h.CellSize = idx.CellSize()
	h.Agents = idx.Len()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(h)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	start, lens, pos := idx.Parts()
	body := indexV1{Header: h, Bounds: idx.Bounds(), CellSize: idx.CellSize(), Start: start, Len: lens, Positions: pos}
	if err := gob.NewEncoder(bw).Encode(&body); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// Read loads an index file and re-checks the grouping invariant.
func Read(path string) (*spatial.Index, Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Header{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, Header{}, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return nil, Header{}, fmt.Errorf("read header: %w", err)
	}
	var body indexV1
	if err := gob.NewDecoder(br).Decode(&body); err != nil {
		return nil, Header{}, fmt.Errorf("gob decode: %w", err)
	}
	if body.Header.Format != Format || body.Header.Version != Version {
		return nil, body.Header, fmt.Errorf("unsupported index file %s v%d", body.Header.Format, body.Header.Version)
	}
	idx, err := spatial.FromParts(body.Bounds, body.CellSize, body.Start, body.Len, body.Positions)
	if err != nil {
		return nil, body.Header, err
	}
	return idx, body.Header, nil
}
