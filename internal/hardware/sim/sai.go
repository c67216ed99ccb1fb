// Package sim provides in-memory stand-ins for the audio hardware, used on
// development hosts and in tests.
package sim

import (
	"sync"

	"rtaudio-pipeline/internal/hardware"
)

// FIFO register window of the simulated instances. Only used for reporting.
const fifoBase = 0x30000000

// SAI is a simulated SAI instance. Transmitted words queue up per line
// until drained; received words are fed in by the test or, with Loopback,
// by the transmitter.
type SAI struct {
	mu       sync.Mutex
	instance int
	tx       [][]uint32
	rx       [][]uint32

	txEnabled bool
	rxEnabled bool
	txErr     bool
	rxErr     bool

	// Loopback copies every transmitted word into the receive queue of
	// the same line.
	Loopback bool
	// Depth bounds each queue. A transmit queue past Depth is dropped
	// from the front; a receive queue past Depth latches an overrun.
	// Zero means unbounded.
	Depth int
}

var _ hardware.SAI = (*SAI)(nil)

func NewSAI(instance, lines int) *SAI {
	return &SAI{
		instance: instance,
		tx:       make([][]uint32, lines),
		rx:       make([][]uint32, lines),
	}
}

func (s *SAI) Instance() int { return s.instance }
func (s *SAI) Lines() int    { return len(s.tx) }

func (s *SAI) TxWrite(line int, words []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tx[line] = append(s.tx[line], words...)
	if s.Depth > 0 && len(s.tx[line]) > s.Depth {
		s.tx[line] = s.tx[line][len(s.tx[line])-s.Depth:]
	}
	if s.Loopback {
		s.pushRx(line, words)
	}
}

func (s *SAI) pushRx(line int, words []uint32) {
	s.rx[line] = append(s.rx[line], words...)
	if s.Depth > 0 && len(s.rx[line]) > s.Depth {
		s.rx[line] = s.rx[line][len(s.rx[line])-s.Depth:]
		if s.rxEnabled {
			s.rxErr = true
		}
	}
}

// RxRead fills words from the receive queue. Missing words read as zero.
func (s *SAI) RxRead(line int, words []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(words, s.rx[line])
	clear(words[n:])
	s.rx[line] = s.rx[line][n:]
}

func (s *SAI) TxError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txErr
}

func (s *SAI) RxError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rxErr
}

func (s *SAI) ResetTx() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.tx)
	s.txErr = false
	s.txEnabled = false
}

func (s *SAI) ResetRx() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.rx)
	s.rxErr = false
	s.rxEnabled = false
}

func (s *SAI) EnableTx() {
	s.mu.Lock()
	s.txEnabled = true
	s.mu.Unlock()
}

func (s *SAI) EnableRx() {
	s.mu.Lock()
	s.rxEnabled = true
	s.mu.Unlock()
}

func (s *SAI) FIFOAddress(line int) uintptr {
	return uintptr(fifoBase + s.instance*0x10000 + 0x20 + 4*line)
}

// Enabled reports the transmitter and receiver enable bits.
func (s *SAI) Enabled() (tx, rx bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txEnabled, s.rxEnabled
}

// Drain returns and clears the words transmitted on line.
func (s *SAI) Drain(line int) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.tx[line]
	s.tx[line] = nil
	return w
}

// Feed queues words for reception on line.
func (s *SAI) Feed(line int, words []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushRx(line, words)
}

// FailTx latches a transmit underrun.
func (s *SAI) FailTx() {
	s.mu.Lock()
	s.txErr = true
	s.mu.Unlock()
}

// FailRx latches a receive overrun.
func (s *SAI) FailRx() {
	s.mu.Lock()
	s.rxErr = true
	s.mu.Unlock()
}
