package hardware

import "errors"

// Limits of the SAI blocks found on i.MX 8M / RT1170 class parts.
const (
	MaxSAIInstances = 7
	MaxSAILines     = 8
	MaxSAIChannels  = 32 // TDM slots per line

	MaxClockDomains = 8
)

var (
	ErrNoSuchPort   = errors.New("hardware: no such port")
	ErrNoSuchDomain = errors.New("hardware: no such clock domain")
)

// SAI is one Synchronous Audio Interface instance. Words are interleaved by
// TDM slot: a frame on a line with N channels is N consecutive words.
// Implementations must not block.
type SAI interface {
	Instance() int
	Lines() int

	TxWrite(line int, words []uint32)
	RxRead(line int, words []uint32)

	// TxError/RxError report a latched FIFO underrun/overrun.
	TxError() bool
	RxError() bool

	// ResetTx/ResetRx flush the FIFOs and clear latched errors of one
	// direction. That direction stays disabled until the next
	// EnableTx/EnableRx; the other direction is left untouched.
	ResetTx()
	ResetRx()
	EnableTx()
	EnableRx()

	// FIFOAddress is the bus address of a line's data register, for DMA
	// setups and diagnostics. Zero when not applicable.
	FIFOAddress(line int) uintptr
}

// BitClocks exposes the free-running bit-clock counters of the audio clock
// domains. Snapshot must read both counters as one atomic observation.
type BitClocks interface {
	Snapshot(src, dst int) (srcCount, dstCount uint32, err error)
}

// Adjuster applies a frequency correction, in parts per billion, to the
// clock feeding a domain.
type Adjuster interface {
	Adjust(domain int, ppb int32) error
}

// Set is the collection of hardware handed to a pipeline at build time.
type Set struct {
	SAI      map[int]SAI
	Clocks   BitClocks
	Adjuster Adjuster
}

// Port returns SAI instance n.
func (s *Set) Port(n int) (SAI, error) {
	if s == nil || s.SAI == nil {
		return nil, ErrNoSuchPort
	}
	p, ok := s.SAI[n]
	if !ok {
		return nil, ErrNoSuchPort
	}
	return p, nil
}
