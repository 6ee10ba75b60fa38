package workers

import (
	"runtime"
	"sync"
)

// MaxWorkers caps the pool regardless of core count.
const MaxWorkers = 16

// minPerWorker is the smallest batch worth a goroutine hop.
const minPerWorker = 64

// Pool splits index ranges across a fixed number of workers. Worker ids are
// stable in [0, Size()) so callers can keep per-worker buffers.
type Pool struct {
	n int
}

// New creates a pool with n workers. If n is 0 it defaults to NumCPU.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > MaxWorkers {
		n = MaxWorkers
	}
	return &Pool{n: n}
}

func (p *Pool) Size() int {
	if p == nil {
		return 1
	}
	return p.n
}

// Run calls fn once per worker with a contiguous [lo,hi) slice of [0,total)
// and returns after all calls finish. Small inputs run inline on worker 0.
func (p *Pool) Run(total int, fn func(worker, lo, hi int)) {
	if total <= 0 {
		return
	}
	n := p.Size()
	if want := (total + minPerWorker - 1) / minPerWorker; want < n {
		n = want
	}
	if n <= 1 {
		fn(0, 0, total)
		return
	}
	chunk := (total + n - 1) / n
	var wg sync.WaitGroup
	for w := 0; w < n; w++ {
		lo := w * chunk
		if lo >= total {
			break
		}
		hi := lo + chunk
		if hi > total {
			hi = total
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			fn(w, lo, hi)
		}(w, lo, hi)
	}
	wg.Wait()
}
