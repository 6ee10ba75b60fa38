package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"hordestream.ai/internal/sim/engine"
	"hordestream.ai/internal/sim/spatial"
)

const Version = 1

type Header struct {
	Version  int    `json:"version"`
	EngineID string `json:"engine_id"`
	Tick     uint64 `json:"tick"`
	Seed     int64  `json:"seed"`
	// Index is the spatial index cache fingerprint the live set was built from.
	Index string `json:"index,omitempty"`
}

// SnapshotV1 is a full copy of the live set at a tick boundary.
type SnapshotV1 struct {
	Header Header

	Center spatial.Cell
	Radius int
	Cells  []spatial.Cell
	Agents []AgentV1
}

type AgentV1 struct {
	ID               uint64
	Slot             int32
	Cell             spatial.Cell
	Pos              spatial.Vec3
	Behavior         string
	Active           bool
	RenderSuppressed bool
}

// FromEngine converts an unlimited engine snapshot.
func FromEngine(s engine.Snapshot, engineID string, seed int64, index string) (SnapshotV1, error) {
	if s.Limited {
		return SnapshotV1{}, fmt.Errorf("snapshot: engine snapshot is truncated (%d of %d agents)", len(s.Agents), s.Total)
	}
	out := SnapshotV1{
		Header: Header{Version: Version, EngineID: engineID, Tick: s.Tick, Seed: seed, Index: index},
		Center: s.Center,
		Radius: s.Radius,
		Cells:  append([]spatial.Cell(nil), s.Cells...),
		Agents: make([]AgentV1, 0, len(s.Agents)),
	}
	for _, a := range s.Agents {
		out.Agents = append(out.Agents, AgentV1{
			ID:               uint64(a.ID),
			Slot:             a.Slot,
			Cell:             a.Cell,
			Pos:              a.Pos,
			Behavior:         a.Behavior.Variant.String(),
			Active:           a.Active,
			RenderSuppressed: a.RenderSuppressed,
		})
	}
	return out, nil
}

// WriteSnapshot stores snap as zstd(JSON header line + gob body) through a
// temp file.
func WriteSnapshot(path string, snap SnapshotV1) (err error) {
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

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
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

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot: unsupported version %d", snap.Header.Version)
	}
	return snap, nil
}

// FileName is the conventional file name for a snapshot at tick.
func FileName(tick uint64) string { return fmt.Sprintf("%d.snap.zst", tick) }
