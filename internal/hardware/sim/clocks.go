package sim

import (
	"fmt"
	"sync"
	"time"

	"rtaudio-pipeline/internal/hardware"
)

type domain struct {
	rate  float64 // nominal bit clock, Hz
	drift float64 // free-running error, ppb
	ppb   int32   // applied correction
	count float64
}

// Clocks simulates the bit-clock counters of every audio clock domain and
// the adjustable PLLs feeding them. It implements both hardware.BitClocks
// and hardware.Adjuster.
type Clocks struct {
	mu      sync.Mutex
	domains [hardware.MaxClockDomains]domain

	// Now, when set, makes Snapshot advance the counters by the wall time
	// elapsed since the previous call.
	Now  func() time.Time
	last time.Time
}

var (
	_ hardware.BitClocks = (*Clocks)(nil)
	_ hardware.Adjuster  = (*Clocks)(nil)
)

// NewClocks creates domains all running at rate Hz.
func NewClocks(rate float64) *Clocks {
	c := &Clocks{}
	for i := range c.domains {
		c.domains[i].rate = rate
	}
	return c
}

// SetDrift sets the free-running frequency error of a domain.
func (c *Clocks) SetDrift(d int, ppb float64) {
	c.mu.Lock()
	c.domains[d].drift = ppb
	c.mu.Unlock()
}

// Advance moves every counter forward by d of simulated time.
func (c *Clocks) Advance(d time.Duration) {
	c.mu.Lock()
	c.advance(d.Seconds())
	c.mu.Unlock()
}

func (c *Clocks) advance(sec float64) {
	for i := range c.domains {
		dm := &c.domains[i]
		dm.count += dm.rate * (1 + (dm.drift+float64(dm.ppb))/1e9) * sec
	}
}

func (c *Clocks) Snapshot(src, dst int) (uint32, uint32, error) {
	if src < 0 || src >= len(c.domains) || dst < 0 || dst >= len(c.domains) {
		return 0, 0, hardware.ErrNoSuchDomain
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Now != nil {
		now := c.Now()
		if !c.last.IsZero() {
			c.advance(now.Sub(c.last).Seconds())
		}
		c.last = now
	}
	return counter(c.domains[src].count), counter(c.domains[dst].count), nil
}

// counter truncates to the 32-bit width of the hardware register.
func counter(v float64) uint32 {
	return uint32(uint64(v))
}

func (c *Clocks) Adjust(d int, ppb int32) error {
	if d < 0 || d >= len(c.domains) {
		return fmt.Errorf("adjust domain %d: %w", d, hardware.ErrNoSuchDomain)
	}
	c.mu.Lock()
	c.domains[d].ppb = ppb
	c.mu.Unlock()
	return nil
}

// Correction returns the correction currently applied to a domain.
func (c *Clocks) Correction(d int) int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.domains[d].ppb
}
