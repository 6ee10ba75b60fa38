package workers

import (
	"sync/atomic"
	"testing"
)

func TestRunCoversRangeOnce(t *testing.T) {
	p := New(4)
	const total = 1000
	hits := make([]int32, total)
	var maxWorker atomic.Int32
	p.Run(total, func(w, lo, hi int) {
		if int32(w) > maxWorker.Load() {
			maxWorker.Store(int32(w))
		}
		for i := lo; i < hi; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	})
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d hit %d times", i, h)
		}
	}
	if maxWorker.Load() >= int32(p.Size()) {
		t.Fatalf("worker id %d out of range", maxWorker.Load())
	}
}

func TestRunSmallInline(t *testing.T) {
	p := New(8)
	calls := 0
	p.Run(10, func(w, lo, hi int) {
		calls++
		if w != 0 || lo != 0 || hi != 10 {
			t.Fatalf("w=%d lo=%d hi=%d", w, lo, hi)
		}
	})
	if calls != 1 {
		t.Fatalf("calls=%d want=1", calls)
	}
}

func TestNewClamps(t *testing.T) {
	if New(100).Size() != MaxWorkers {
		t.Fatalf("size not capped")
	}
	if New(0).Size() < 1 {
		t.Fatalf("default size < 1")
	}
}
