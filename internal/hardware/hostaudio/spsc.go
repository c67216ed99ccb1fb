package hostaudio

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// spsc is a single-producer single-consumer sample queue. The scheduler
// pushes, the audio output callback pops.
type spsc struct {
	head atomic.Uint64 // next write, owned by the producer

	_ cpu.CacheLinePad

	tail atomic.Uint64 // next read, owned by the consumer

	_ cpu.CacheLinePad

	mask uint64
	buf  []float32
}

// newSPSC rounds capacity up to a power of two.
func newSPSC(capacity int) *spsc {
	n := uint64(1)
	for n < uint64(capacity) {
		n <<= 1
	}
	return &spsc{mask: n - 1, buf: make([]float32, n)}
}

func (q *spsc) len() int {
	return int(q.head.Load() - q.tail.Load())
}

func (q *spsc) cap() int { return len(q.buf) }

// push copies as much of v as fits and returns the count.
func (q *spsc) push(v []float32) int {
	head := q.head.Load()
	free := uint64(len(q.buf)) - (head - q.tail.Load())
	n := min(uint64(len(v)), free)
	for i := uint64(0); i < n; i++ {
		q.buf[(head+i)&q.mask] = v[i]
	}
	q.head.Store(head + n)
	return int(n)
}

// pop fills dst from the queue and returns the count.
func (q *spsc) pop(dst []float32) int {
	tail := q.tail.Load()
	n := min(uint64(len(dst)), q.head.Load()-tail)
	for i := uint64(0); i < n; i++ {
		dst[i] = q.buf[(tail+i)&q.mask]
	}
	q.tail.Store(tail + n)
	return int(n)
}

// discard drops everything queued. Only the consumer may call it.
func (q *spsc) discard() {
	q.tail.Store(q.head.Load())
}
