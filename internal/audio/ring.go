package audio

import "fmt"

// Ring is a power-of-two circular store of samples with separate read and
// write cursors. One slot is always kept empty so that read == write means
// empty. A Ring has exactly one writer and one reader and does no locking;
// callers check Available/Free before every batch operation.
type Ring struct {
	base    []Sample
	size    uint32
	mask    uint32
	read    uint32
	write   uint32
	silence uint32
	shared  bool
}

// NewRing creates a ring over base. If base is nil the ring allocates its
// own storage of size rounded up to a power of two, otherwise size is
// rounded down so the ring fits the caller's store.
func NewRing(base []Sample, size int) *Ring {
	r := &Ring{}
	r.Init(base, size)
	return r
}

// Init (re)initializes the ring. Cursors start at 0.
func (r *Ring) Init(base []Sample, size int) {
	if base == nil {
		n := NextPowerOfTwo(size)
		r.base = make([]Sample, n)
		r.size = uint32(n)
		r.shared = false
	} else {
		if size > len(base) || size <= 0 {
			size = len(base)
		}
		n := prevPowerOfTwo(size)
		r.base = base[:n]
		r.size = uint32(n)
		r.shared = true
	}
	r.mask = r.size - 1
	r.read = 0
	r.write = 0
}

// SetSilence sets the number of zero samples written by Reset.
func (r *Ring) SetSilence(n int) {
	if n < 0 {
		n = 0
	}
	if uint32(n) > r.size-1 {
		n = int(r.size - 1)
	}
	r.silence = uint32(n)
}

func (r *Ring) Size() int     { return int(r.size) }
func (r *Ring) Shared() bool  { return r.shared }
func (r *Ring) Silence() int  { return int(r.silence) }
func (r *Ring) ReadPos() int  { return int(r.read) }
func (r *Ring) WritePos() int { return int(r.write) }

// Available returns the number of unread samples.
func (r *Ring) Available() int {
	return int((r.write - r.read) & r.mask)
}

// Free returns how many samples can be written before the ring is full.
func (r *Ring) Free() int {
	return int(r.size) - r.Available() - 1
}

func (r *Ring) Empty() bool {
	return r.read == r.write
}

// Full reports whether the next write would make the ring look empty.
func (r *Ring) Full() bool {
	return r.read == (r.write+1)&r.mask
}

// Write copies samples in at the write cursor. The caller must have checked
// Free.
func (r *Ring) Write(samples []Sample) {
	n := uint32(len(samples))
	pos := r.write
	first := r.size - pos
	if first >= n {
		copySamples(r.base[pos:pos+n], samples)
	} else {
		copySamples(r.base[pos:], samples[:first])
		copySamples(r.base[:n-first], samples[first:])
	}
	r.write = (pos + n) & r.mask
}

// Read copies len(samples) samples out at the read cursor and consumes
// them. The caller must have checked Available.
func (r *Ring) Read(samples []Sample) {
	r.Peek(samples, 0)
	r.ReadUpdate(len(samples))
}

// Peek copies len(dst) samples starting offset samples past the read
// cursor without consuming them.
func (r *Ring) Peek(dst []Sample, offset int) {
	n := uint32(len(dst))
	pos := (r.read + uint32(offset)) & r.mask
	first := r.size - pos
	if first >= n {
		copySamples(dst, r.base[pos:pos+n])
	} else {
		copySamples(dst[:first], r.base[pos:])
		copySamples(dst[first:], r.base[:n-first])
	}
}

// At returns the sample offset positions past the read cursor.
func (r *Ring) At(offset int) Sample {
	return r.base[(r.read+uint32(offset))&r.mask]
}

// Put stores s offset positions past the write cursor without advancing it.
// WriteUpdate publishes the samples.
func (r *Ring) Put(offset int, s Sample) {
	r.base[(r.write+uint32(offset))&r.mask] = s
}

// ReadUpdate consumes n samples.
func (r *Ring) ReadUpdate(n int) {
	r.read = (r.read + uint32(n)) & r.mask
}

// WriteUpdate publishes n samples stored with Put.
func (r *Ring) WriteUpdate(n int) {
	r.write = (r.write + uint32(n)) & r.mask
}

// WriteSilence writes n zero samples.
func (r *Ring) WriteSilence(n int) {
	for i := 0; i < n; i++ {
		r.base[r.write] = 0
		r.write = (r.write + 1) & r.mask
	}
}

// Reset zeroes both cursors and pre-fills the configured silence.
func (r *Ring) Reset() {
	r.read = 0
	r.write = 0
	r.WriteSilence(int(r.silence))
}

// MaxRingSize is the largest ring NextPowerOfTwo will size.
const MaxRingSize = 1 << 30

// NextPowerOfTwo returns the smallest power of two >= n (minimum 2). It
// panics when n exceeds MaxRingSize; callers bound sizes first.
func NextPowerOfTwo(n int) int {
	if n > MaxRingSize {
		panic(fmt.Sprintf("audio: ring size %d exceeds %d", n, MaxRingSize))
	}
	p := 2
	for p < n {
		p <<= 1
	}
	return p
}

func prevPowerOfTwo(n int) int {
	p := 1
	for p<<1 <= n {
		p <<= 1
	}
	return p
}
