// Package hostaudio plays an SAI transmit line through the host's sound
// output, for running pipelines on a development machine.
package hostaudio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"rtaudio-pipeline/internal/audio"
	"rtaudio-pipeline/internal/hardware"
)

const MaxChannels = 2

// player is the host output. It pulls samples through the reader handed
// to newPlayer.
type player interface {
	Play()
	Pause()
	Close() error
}

// SAI is a single-line SAI whose transmitter is the host sound output.
// Words are expected in the default sample format. The receiver reads
// silence.
type SAI struct {
	instance int
	slots    int

	mu  sync.Mutex
	out player

	queue   *spsc
	frame   []float32
	enabled atomic.Bool
	flush   atomic.Bool

	// Strict latches TxError on an output underrun. Host scheduling is
	// not real time, so by default underruns are only counted.
	Strict bool

	txErr     atomic.Bool
	underruns atomic.Uint64
	dropped   atomic.Uint64
}

var _ hardware.SAI = (*SAI)(nil)

// New opens the host output with one channel per TDM slot. latency is the
// queue length in frames.
func New(instance, slots, sampleRate, latency int) (*SAI, error) {
	if slots < 1 || slots > MaxChannels {
		return nil, fmt.Errorf("hostaudio: %d slots, host output supports 1 or %d", slots, MaxChannels)
	}
	s := newSAI(instance, slots, latency)
	out, err := newPlayer(sampleRate, slots, readerFunc(s.read))
	if err != nil {
		return nil, fmt.Errorf("hostaudio: %w", err)
	}
	s.out = out
	return s, nil
}

func newSAI(instance, slots, latency int) *SAI {
	return &SAI{
		instance: instance,
		slots:    slots,
		queue:    newSPSC(latency * slots),
	}
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

// read is the output callback: float32 little endian, interleaved.
func (s *SAI) read(p []byte) (int, error) {
	n := len(p) / 4
	if s.flush.Swap(false) {
		s.queue.discard()
	}
	if cap(s.frame) < n {
		s.frame = make([]float32, n)
	}
	buf := s.frame[:n]
	got := 0
	if s.enabled.Load() {
		got = s.queue.pop(buf)
		if got < n {
			s.underruns.Add(1)
			if s.Strict {
				s.txErr.Store(true)
			}
		}
	}
	clear(buf[got:])
	for i, v := range buf {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(v))
	}
	return len(p), nil
}

func (s *SAI) Instance() int { return s.instance }
func (s *SAI) Lines() int    { return 1 }

func (s *SAI) TxWrite(line int, words []uint32) {
	if line != 0 {
		return
	}
	tmp := make([]float32, len(words))
	for i, w := range words {
		tmp[i] = float32(audio.SampleToFloat(w))
	}
	if n := s.queue.push(tmp); n < len(tmp) {
		s.dropped.Add(uint64(len(tmp) - n))
	}
}

func (s *SAI) RxRead(line int, words []uint32) { clear(words) }

func (s *SAI) TxError() bool { return s.txErr.Load() }
func (s *SAI) RxError() bool { return false }

func (s *SAI) ResetTx() {
	s.enabled.Store(false)
	s.flush.Store(true)
	s.txErr.Store(false)
	s.mu.Lock()
	if s.out != nil {
		s.out.Pause()
	}
	s.mu.Unlock()
}

func (s *SAI) EnableTx() {
	s.enabled.Store(true)
	s.mu.Lock()
	if s.out != nil {
		s.out.Play()
	}
	s.mu.Unlock()
}

func (s *SAI) ResetRx()  {}
func (s *SAI) EnableRx() {}

func (s *SAI) FIFOAddress(line int) uintptr { return 0 }

// Underruns counts output callbacks that found the queue short.
func (s *SAI) Underruns() uint64 { return s.underruns.Load() }

// Dropped counts samples discarded because the queue was full.
func (s *SAI) Dropped() uint64 { return s.dropped.Load() }

func (s *SAI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return nil
	}
	err := s.out.Close()
	s.out = nil
	return err
}
