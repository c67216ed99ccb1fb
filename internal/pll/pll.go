package pll

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	"rtaudio-pipeline/internal/hardware"
	"rtaudio-pipeline/internal/stats"
)

const (
	// MaxPPB bounds the correction applied to the controlled clock.
	MaxPPB = 200000

	Kp = 4
	Ki = 64

	// LockingSamples is how many control steps the loop observes before
	// estimating the initial frequency ratio.
	LockingSamples = 10

	ppbScale = 1000000000

	defaultStatsWindow = 16
)

var ErrInvalidDomains = errors.New("pll: invalid clock domains")

type State int

const (
	Unlocked State = iota
	Locking
	Locked
)

func (s State) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Locking:
		return "locking"
	case Locked:
		return "locked"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config describes one recovery loop. Src is the reference domain, Dst the
// domain whose clock is corrected.
type Config struct {
	Src        int
	Dst        int
	Decimation int // scheduler invocations per control step
	Enabled    bool

	StatsWindow int
}

// Check validates the configuration.
func (c Config) Check() error {
	if err := CheckDomains(c.Src, c.Dst); err != nil {
		return err
	}
	if c.Decimation < 1 {
		return fmt.Errorf("pll: decimation %d must be >= 1", c.Decimation)
	}
	return nil
}

// CheckDomains validates a source/destination domain pair.
func CheckDomains(src, dst int) error {
	if src < 0 || src >= hardware.MaxClockDomains || dst < 0 || dst >= hardware.MaxClockDomains {
		return fmt.Errorf("%w: src %d dst %d out of range", ErrInvalidDomains, src, dst)
	}
	if src == dst {
		return fmt.Errorf("%w: src and dst are both %d", ErrInvalidDomains, src)
	}
	return nil
}

// Controller is a PI clock-recovery loop comparing the bit clocks of two
// domains. It is driven from a single goroutine; control-plane changes must
// be applied between calls to Tick.
type Controller struct {
	clocks hardware.BitClocks
	adj    hardware.Adjuster

	enabled    bool
	src, dst   int
	decimation int
	count      int

	state State

	srcBCR, dstBCR   uint32
	srcBclk, dstBclk int64
	srcInit, dstInit int64
	prevSrcBclk      int64
	bclkOffset       int64
	bclkErr          int64
	lockingCount     int

	integral int64
	prevErr  int64
	ppb      int32

	samples        uint64
	snapshotErrors uint64
	adjustErrors   uint64

	errStats *stats.Stats
	ppbStats *stats.Stats
}

// New creates a controller in the unlocked state.
func New(cfg Config, clocks hardware.BitClocks, adj hardware.Adjuster) (*Controller, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	window := cfg.StatsWindow
	if window <= 0 {
		window = defaultStatsWindow
	}
	return &Controller{
		clocks:     clocks,
		adj:        adj,
		enabled:    cfg.Enabled,
		src:        cfg.Src,
		dst:        cfg.Dst,
		decimation: cfg.Decimation,
		errStats:   stats.New("err", window),
		ppbStats:   stats.New("ppb", window),
	}, nil
}

func (c *Controller) State() State        { return c.state }
func (c *Controller) Enabled() bool       { return c.enabled }
func (c *Controller) PPB() int32          { return c.ppb }
func (c *Controller) Domains() (int, int) { return c.src, c.dst }

// Tick is called once per scheduler period. Every Decimation calls it runs
// one control step.
func (c *Controller) Tick() {
	if !c.enabled {
		return
	}
	c.count++
	if c.count < c.decimation {
		return
	}
	c.count = 0
	c.sample()
}

func (c *Controller) sample() {
	srcBCR, dstBCR, err := c.clocks.Snapshot(c.src, c.dst)
	if err != nil {
		c.snapshotErrors++
		return
	}
	c.samples++

	if c.state == Unlocked {
		c.srcBCR, c.dstBCR = srcBCR, dstBCR
		c.srcBclk, c.dstBclk = int64(srcBCR), int64(dstBCR)
		c.srcInit, c.dstInit = c.srcBclk, c.dstBclk
		c.prevSrcBclk = c.srcBclk
		c.bclkOffset = c.srcBclk - c.dstBclk
		c.bclkErr = 0
		c.lockingCount = 0
		c.state = Locking
		return
	}

	// 32-bit hardware counters wrap; the unsigned difference is the delta.
	c.srcBclk += int64(srcBCR - c.srcBCR)
	c.dstBclk += int64(dstBCR - c.dstBCR)
	c.srcBCR, c.dstBCR = srcBCR, dstBCR

	c.bclkErr = c.srcBclk - c.dstBclk - c.bclkOffset
	dt := c.srcBclk - c.prevSrcBclk
	c.prevSrcBclk = c.srcBclk

	switch c.state {
	case Locking:
		c.lockingCount++
		if c.lockingCount < LockingSamples {
			return
		}
		dSrc := c.srcBclk - c.srcInit
		dDst := c.dstBclk - c.dstInit
		if dSrc <= 0 || dDst <= 0 {
			// A clock is not running, keep waiting.
			return
		}
		ratio := int64(math.Round(float64(dSrc) / float64(dDst) * ppbScale))
		c.integral = ratio * Ki
		c.prevErr = 0
		c.state = Locked
		log.Printf("[pll %d->%d] locked, initial ratio %d ppb", c.src, c.dst, ratio-ppbScale)
		c.update(ratio-ppbScale, 0)

	case Locked:
		if dt <= 0 {
			return
		}
		e := c.bclkErr * ppbScale / dt
		c.integral += (e + c.prevErr) / 2
		c.prevErr = e
		c.update(e/Kp+c.integral/Ki-ppbScale, e)
	}
}

func (c *Controller) update(out, e int64) {
	if out > MaxPPB {
		out = MaxPPB
	} else if out < -MaxPPB {
		out = -MaxPPB
	}
	c.errStats.Add(e)
	c.ppbStats.Add(out)

	if ppb := int32(out); ppb != c.ppb {
		c.apply(ppb)
	}
}

func (c *Controller) apply(ppb int32) {
	if c.adj == nil {
		c.ppb = ppb
		return
	}
	if err := c.adj.Adjust(c.dst, ppb); err != nil {
		c.adjustErrors++
		log.Printf("[pll %d->%d] adjust %d ppb failed: %v", c.src, c.dst, ppb, err)
		return
	}
	c.ppb = ppb
}

// Reset returns the loop to the unlocked state and parks the correction at
// zero.
func (c *Controller) Reset() {
	c.state = Unlocked
	c.count = 0
	c.srcBCR, c.dstBCR = 0, 0
	c.srcBclk, c.dstBclk = 0, 0
	c.srcInit, c.dstInit = 0, 0
	c.prevSrcBclk = 0
	c.bclkOffset = 0
	c.bclkErr = 0
	c.lockingCount = 0
	c.integral = 0
	c.prevErr = 0
	c.samples = 0
	c.errStats.Reset()
	c.ppbStats.Reset()
	if c.ppb != 0 {
		c.apply(0)
	}
}

// Exit parks the controlled clock at its nominal frequency.
func (c *Controller) Exit() {
	c.apply(0)
}

// Enable turns the loop on or off. Any change restarts from unlocked.
func (c *Controller) Enable(on bool) {
	if on == c.enabled {
		return
	}
	c.Reset()
	c.enabled = on
}

// SetDomains reassigns the clock domains and restarts from unlocked. The
// previous destination is parked at zero first.
func (c *Controller) SetDomains(src, dst int) error {
	if err := CheckDomains(src, dst); err != nil {
		return err
	}
	c.Reset()
	c.src, c.dst = src, dst
	return nil
}

// Status is a read-only view of the loop for diagnostics.
type Status struct {
	Enabled        bool         `json:"enabled"`
	Src            int          `json:"src"`
	Dst            int          `json:"dst"`
	State          string       `json:"state"`
	PPB            int32        `json:"ppb"`
	BclkErr        int64        `json:"bclkErr"`
	Samples        uint64       `json:"samples"`
	SnapshotErrors uint64       `json:"snapshotErrors"`
	AdjustErrors   uint64       `json:"adjustErrors"`
	Err            stats.Result `json:"err"`
	PPBStats       stats.Result `json:"ppbStats"`
}

func (c *Controller) Status() Status {
	return Status{
		Enabled:        c.enabled,
		Src:            c.src,
		Dst:            c.dst,
		State:          c.state.String(),
		PPB:            c.ppb,
		BclkErr:        c.bclkErr,
		Samples:        c.samples,
		SnapshotErrors: c.snapshotErrors,
		AdjustErrors:   c.adjustErrors,
		Err:            c.errStats.Result,
		PPBStats:       c.ppbStats.Result,
	}
}

// Dump writes the loop state in human-readable form.
func (c *Controller) Dump(w io.Writer) {
	fmt.Fprintf(w, "pll %d->%d enabled %v state %s\n", c.src, c.dst, c.enabled, c.state)
	fmt.Fprintf(w, "  src_bclk %d dst_bclk %d offset %d err %d\n", c.srcBclk, c.dstBclk, c.bclkOffset, c.bclkErr)
	fmt.Fprintf(w, "  ppb %d integral %d samples %d snapshot errors %d adjust errors %d\n",
		c.ppb, c.integral, c.samples, c.snapshotErrors, c.adjustErrors)
	fmt.Fprint(w, "  ")
	c.errStats.Print(w)
	fmt.Fprint(w, "  ")
	c.ppbStats.Print(w)
}
