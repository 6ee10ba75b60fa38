package main

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"hordestream.ai/internal/persistence/indexfile"
	"hordestream.ai/internal/persistence/snapshot"
	"hordestream.ai/internal/sim/worldtest"
)

// verifySnapshot checks a stored live set against the index it was built from.
func verifySnapshot(snapPath, indexPath string) error {
	snap, err := snapshot.ReadSnapshot(snapPath)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	idx, h, err := indexfile.Read(indexPath)
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	if snap.Header.Index != "" && h.Params != "" && snap.Header.Index != h.Params {
		return fmt.Errorf("snapshot was taken over index %s, cache holds %s", snap.Header.Index, h.Params)
	}
	fmt.Printf("snapshot engine=%s tick=%s seed=%d center=(%d,%d) radius=%d cells=%s agents=%s\n",
		snap.Header.EngineID, humanize.Comma(int64(snap.Header.Tick)), snap.Header.Seed,
		snap.Center.X, snap.Center.Y, snap.Radius,
		humanize.Comma(int64(len(snap.Cells))), humanize.Comma(int64(len(snap.Agents))))
	return worldtest.Check(idx, worldtest.ViewOfSnapshot(snap))
}
