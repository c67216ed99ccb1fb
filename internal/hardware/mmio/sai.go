package mmio

import (
	"rtaudio-pipeline/internal/hardware"
)

// SAI register offsets.
const (
	regTCSR  = 0x08
	regTCR3  = 0x14
	regTDR0  = 0x20
	regTBCTN = 0x78
	regRCSR  = 0x88
	regRCR3  = 0x94
	regRDR0  = 0xa0
	regRBCTN = 0xf8

	saiWindowSize = 0x100
)

// TCSR/RCSR bits.
const (
	csrTE  = 1 << 31 // transmitter/receiver enable
	csrBCE = 1 << 28 // bit count enable
	csrFR  = 1 << 25 // FIFO reset
	csrSR  = 1 << 24 // software reset
	csrWSF = 1 << 20
	csrSEF = 1 << 19 // sync error
	csrFEF = 1 << 18 // FIFO underrun/overrun
)

// w1c flags, written back as 1 to clear.
const csrFlags = csrWSF | csrSEF | csrFEF

// crChannelEnable is the per-line enable field of TCR3/RCR3.
const crChannelEnable = 16

// SAI is one SAI instance. The FIFO data registers of every line are
// accessed word by word.
type SAI struct {
	w        *Window
	instance int
	lines    int
	phys     uint64
}

var _ hardware.SAI = (*SAI)(nil)

// NewSAI wraps the register window of one instance. phys is the bus
// address of the window, reported by FIFOAddress.
func NewSAI(w *Window, instance, lines int, phys uint64) *SAI {
	return &SAI{w: w, instance: instance, lines: lines, phys: phys}
}

func (s *SAI) Instance() int { return s.instance }
func (s *SAI) Lines() int    { return s.lines }

func (s *SAI) TxWrite(line int, words []uint32) {
	off := regTDR0 + 4*line
	for _, v := range words {
		s.w.Write32(off, v)
	}
}

func (s *SAI) RxRead(line int, words []uint32) {
	off := regRDR0 + 4*line
	for i := range words {
		words[i] = s.w.Read32(off)
	}
}

func (s *SAI) TxError() bool { return s.w.Read32(regTCSR)&csrFEF != 0 }
func (s *SAI) RxError() bool { return s.w.Read32(regRCSR)&csrFEF != 0 }

func (s *SAI) ResetTx() { s.reset(regTCSR, regTCR3) }
func (s *SAI) ResetRx() { s.reset(regRCSR, regRCR3) }

// reset disables one direction, flushes its FIFOs, clears its w1c flags
// and masks its data lines.
func (s *SAI) reset(csr, cr3 int) {
	s.w.Modify32(csr, csrTE|csrFlags, 0)
	s.w.Modify32(csr, 0, csrFR|csrFlags)
	s.w.Modify32(cr3, s.lineMask(), 0)
}

func (s *SAI) lineMask() uint32 {
	return (uint32(1)<<s.lines - 1) << crChannelEnable
}

func (s *SAI) EnableTx() {
	s.w.Modify32(regTCR3, 0, s.lineMask())
	s.w.Modify32(regTCSR, csrFlags, csrTE|csrBCE)
}

func (s *SAI) EnableRx() {
	s.w.Modify32(regRCR3, 0, s.lineMask())
	s.w.Modify32(regRCSR, csrFlags, csrTE|csrBCE)
}

func (s *SAI) FIFOAddress(line int) uintptr {
	return uintptr(s.phys) + uintptr(regTDR0+4*line)
}

// TxBitCount reads the free-running transmit bit counter.
func (s *SAI) TxBitCount() uint32 { return s.w.Read32(regTBCTN) }

// RxBitCount reads the free-running receive bit counter.
func (s *SAI) RxBitCount() uint32 { return s.w.Read32(regRBCTN) }
