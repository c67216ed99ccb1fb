package mmio

import (
	"fmt"
	"math"

	"rtaudio-pipeline/internal/hardware"
)

// Clocks reads the transmit bit counters of the SAI clocking each domain.
type Clocks struct {
	domains map[int]*SAI
}

var _ hardware.BitClocks = (*Clocks)(nil)

func NewClocks(domains map[int]*SAI) *Clocks {
	return &Clocks{domains: domains}
}

// Snapshot reads the two counters back to back. The counters run at a few
// MHz, so the skew between the reads is a handful of bit clocks.
func (c *Clocks) Snapshot(src, dst int) (uint32, uint32, error) {
	s, ok := c.domains[src]
	if !ok {
		return 0, 0, fmt.Errorf("domain %d: %w", src, hardware.ErrNoSuchDomain)
	}
	d, ok := c.domains[dst]
	if !ok {
		return 0, 0, fmt.Errorf("domain %d: %w", dst, hardware.ErrNoSuchDomain)
	}
	return s.TxBitCount(), d.TxBitCount(), nil
}

// Fractional audio PLL registers (i.MX 8M CCM_ANALOG).
const (
	regPLLGenCtrl  = 0x00
	regPLLFdivCtl0 = 0x04
	regPLLFdivCtl1 = 0x08

	audioPLLStride = 0x14
	audioPLLCount  = 2

	fdivMShift = 12
	fdivMMask  = 0x3ff
	kdivMask   = 0xffff
)

// AudioPLLs adjusts the fractional divider of the audio PLLs. Domain d is
// fed by audio PLL d mod 2.
type AudioPLLs struct {
	w     *Window
	mdiv  [audioPLLCount]int64
	kdiv0 [audioPLLCount]int64
}

var _ hardware.Adjuster = (*AudioPLLs)(nil)

// NewAudioPLLs records the boot-time dividers as the nominal frequency.
func NewAudioPLLs(w *Window) *AudioPLLs {
	a := &AudioPLLs{w: w}
	for i := 0; i < audioPLLCount; i++ {
		base := i * audioPLLStride
		a.mdiv[i] = int64(w.Read32(base+regPLLFdivCtl0)>>fdivMShift) & fdivMMask
		a.kdiv0[i] = int64(int16(w.Read32(base + regPLLFdivCtl1)))
	}
	return a
}

// Adjust sets the PLL output to nominal * (1 + ppb/1e9). The output is
// proportional to mdiv*65536 + kdiv.
func (a *AudioPLLs) Adjust(domain int, ppb int32) error {
	if domain < 0 || domain >= hardware.MaxClockDomains {
		return fmt.Errorf("domain %d: %w", domain, hardware.ErrNoSuchDomain)
	}
	i := domain % audioPLLCount
	if a.mdiv[i] == 0 {
		return fmt.Errorf("audio pll %d: not configured", i+1)
	}
	nominal := a.mdiv[i]<<16 + a.kdiv0[i]
	k := a.kdiv0[i] + int64(math.Round(float64(nominal)*float64(ppb)/1e9))
	if k < math.MinInt16 || k > math.MaxInt16 {
		return fmt.Errorf("audio pll %d: %d ppb out of kdiv range", i+1, ppb)
	}
	a.w.Modify32(i*audioPLLStride+regPLLFdivCtl1, kdivMask, uint32(uint16(int16(k))))
	return nil
}

// Kdiv returns the current fractional divider of audio PLL n (0 based).
func (a *AudioPLLs) Kdiv(n int) int16 {
	return int16(a.w.Read32(n*audioPLLStride + regPLLFdivCtl1))
}
