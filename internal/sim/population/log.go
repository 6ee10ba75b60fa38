package population

import "hordestream.ai/internal/sim/spatial"

type opKind uint8

const (
	opDestroy opKind = iota + 1
	opRelease
	opPromote
	opClaim
	opInstantiate
)

type record struct {
	op    opKind
	id    AgentID
	spawn Spawn
}

// Segment is one worker's append-only slice of the mutation log.
type Segment struct {
	recs []record
}

func (s *Segment) Destroy(id AgentID) { s.recs = append(s.recs, record{op: opDestroy, id: id}) }
func (s *Segment) Promote(id AgentID) { s.recs = append(s.recs, record{op: opPromote, id: id}) }

// Release drops a cell from the live set after its destroys.
func (s *Segment) Release(c spatial.Cell) {
	s.recs = append(s.recs, record{op: opRelease, spawn: Spawn{Cell: c}})
}

// Claim marks a cell loaded ahead of its instantiates.
func (s *Segment) Claim(c spatial.Cell) {
	s.recs = append(s.recs, record{op: opClaim, spawn: Spawn{Cell: c}})
}

func (s *Segment) Instantiate(sp Spawn) {
	s.recs = append(s.recs, record{op: opInstantiate, spawn: sp})
}

func (s *Segment) Len() int { return len(s.recs) }

type ApplyStats struct {
	Destroyed        int `json:"destroyed"`
	Released         int `json:"released"`
	Orphans          int `json:"orphans"`
	Promoted         int `json:"promoted"`
	Claimed          int `json:"claimed"`
	Spawned          int `json:"spawned"`
	DuplicateSkipped int `json:"duplicate_skipped"`
	MissingSkipped   int `json:"missing_skipped"`
}

// Log is the deferred structural mutation log. Workers append to their own
// segment; Apply replays everything on the calling goroutine.
type Log struct {
	segs     []*Segment
	rejected map[spatial.Cell]struct{}
}

func NewLog(workers int) *Log {
	if workers < 1 {
		workers = 1
	}
	l := &Log{segs: make([]*Segment, workers), rejected: map[spatial.Cell]struct{}{}}
	for i := range l.segs {
		l.segs[i] = &Segment{}
	}
	return l
}

func (l *Log) Segment(worker int) *Segment { return l.segs[worker] }
func (l *Log) Workers() int                { return len(l.segs) }

func (l *Log) Len() int {
	n := 0
	for _, s := range l.segs {
		n += len(s.recs)
	}
	return n
}

// Apply replays the log against store and clears it. Unloads (destroy,
// release) run first, then promotes, then loads (claim, instantiate).
func (l *Log) Apply(store *Store) ApplyStats {
	var st ApplyStats
	for _, seg := range l.segs {
		for _, r := range seg.recs {
			switch r.op {
			case opDestroy:
				if store.destroy(r.id) {
					st.Destroyed++
				} else {
					st.MissingSkipped++
				}
			case opRelease:
				if ok, orphans := store.release(r.spawn.Cell); ok {
					st.Released++
					st.Orphans += orphans
					st.Destroyed += orphans
				}
			}
		}
	}
	for _, seg := range l.segs {
		for _, r := range seg.recs {
			if r.op != opPromote {
				continue
			}
			if store.promote(r.id) {
				st.Promoted++
			} else {
				st.MissingSkipped++
			}
		}
	}
	clear(l.rejected)
	for _, seg := range l.segs {
		for _, r := range seg.recs {
			switch r.op {
			case opClaim:
				if store.claim(r.spawn.Cell) {
					st.Claimed++
				} else {
					l.rejected[r.spawn.Cell] = struct{}{}
				}
			case opInstantiate:
				if _, bad := l.rejected[r.spawn.Cell]; bad || !store.IsCellLoaded(r.spawn.Cell) {
					st.DuplicateSkipped++
					continue
				}
				store.spawn(r.spawn)
				st.Spawned++
			}
		}
	}
	for _, seg := range l.segs {
		seg.recs = seg.recs[:0]
	}
	return st
}
