package sim

import (
	"time"

	"rtaudio-pipeline/internal/hardware"
)

// Board bundles simulated SAI instances and clocks.
type Board struct {
	SAI    map[int]*SAI
	Clocks *Clocks
}

// NewBoard creates instances simulated SAIs with lines data lines each and
// clock domains at bclk Hz. Instance numbering starts at 1, as on the SoC.
func NewBoard(instances, lines int, bclk float64) *Board {
	b := &Board{
		SAI:    make(map[int]*SAI, instances),
		Clocks: NewClocks(bclk),
	}
	for i := 1; i <= instances; i++ {
		b.SAI[i] = NewSAI(i, lines)
	}
	return b
}

// Realtime makes the clocks follow the wall clock.
func (b *Board) Realtime() {
	b.Clocks.Now = time.Now
}

// Set returns the board as a hardware set.
func (b *Board) Set() *hardware.Set {
	s := &hardware.Set{
		SAI:      make(map[int]hardware.SAI, len(b.SAI)),
		Clocks:   b.Clocks,
		Adjuster: b.Clocks,
	}
	for n, p := range b.SAI {
		s.SAI[n] = p
	}
	return s
}
