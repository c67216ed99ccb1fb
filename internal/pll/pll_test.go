package pll

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"rtaudio-pipeline/internal/hardware/sim"
)

// rampClocks advances each counter by a fixed step on every snapshot.
type rampClocks struct {
	src, dst         uint32
	srcStep, dstStep uint32
	fail             bool
}

func (c *rampClocks) Snapshot(src, dst int) (uint32, uint32, error) {
	if c.fail {
		return 0, 0, errors.New("bus error")
	}
	c.src += c.srcStep
	c.dst += c.dstStep
	return c.src, c.dst, nil
}

type adjustCall struct {
	domain int
	ppb    int32
}

type recordingAdjuster struct {
	calls []adjustCall
}

func (a *recordingAdjuster) Adjust(domain int, ppb int32) error {
	a.calls = append(a.calls, adjustCall{domain, ppb})
	return nil
}

func newTestController(t *testing.T, clocks *rampClocks, decimation int) (*Controller, *recordingAdjuster) {
	t.Helper()
	adj := &recordingAdjuster{}
	c, err := New(Config{Src: 0, Dst: 1, Decimation: decimation, Enabled: true}, clocks, adj)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, adj
}

func TestStateProgression(t *testing.T) {
	c, _ := newTestController(t, &rampClocks{srcStep: 1000, dstStep: 1000}, 1)

	if c.State() != Unlocked {
		t.Fatalf("initial state %s", c.State())
	}
	c.Tick()
	if c.State() != Locking {
		t.Fatalf("after 1 sample: %s", c.State())
	}
	for i := 0; i < LockingSamples-1; i++ {
		c.Tick()
		if c.State() != Locking {
			t.Fatalf("after %d samples: %s", i+2, c.State())
		}
	}
	c.Tick()
	if c.State() != Locked {
		t.Fatalf("after %d samples: %s", LockingSamples+1, c.State())
	}
	for i := 0; i < 100; i++ {
		c.Tick()
	}
	if c.State() != Locked {
		t.Fatalf("lost lock: %s", c.State())
	}
}

func TestDecimation(t *testing.T) {
	clocks := &rampClocks{srcStep: 1000, dstStep: 1000}
	c, _ := newTestController(t, clocks, 4)
	for i := 0; i < 3; i++ {
		c.Tick()
	}
	if c.State() != Unlocked {
		t.Fatalf("control step ran before decimation count: %s", c.State())
	}
	c.Tick()
	if c.State() != Locking {
		t.Fatalf("control step did not run on 4th tick: %s", c.State())
	}
	if clocks.src != 1000 {
		t.Errorf("expected exactly one snapshot, counter at %d", clocks.src)
	}
}

func TestDisabledDoesNothing(t *testing.T) {
	clocks := &rampClocks{srcStep: 1000, dstStep: 1000}
	adj := &recordingAdjuster{}
	c, err := New(Config{Src: 0, Dst: 1, Decimation: 1}, clocks, adj)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for i := 0; i < 20; i++ {
		c.Tick()
	}
	if c.State() != Unlocked || clocks.src != 0 {
		t.Errorf("disabled loop sampled clocks: state %s src %d", c.State(), clocks.src)
	}
}

func TestInitialRatioEstimate(t *testing.T) {
	// Source runs 100 ppm fast.
	c, adj := newTestController(t, &rampClocks{srcStep: 1000100, dstStep: 1000000}, 1)
	for i := 0; i < LockingSamples+1; i++ {
		c.Tick()
	}
	if c.State() != Locked {
		t.Fatalf("not locked: %s", c.State())
	}
	if len(adj.calls) != 1 {
		t.Fatalf("expected 1 adjust call, got %d", len(adj.calls))
	}
	if adj.calls[0] != (adjustCall{1, 100000}) {
		t.Errorf("unexpected first correction %+v", adj.calls[0])
	}
}

func TestEqualClocksNeverAdjust(t *testing.T) {
	c, adj := newTestController(t, &rampClocks{srcStep: 3072, dstStep: 3072}, 1)
	for i := 0; i < 200; i++ {
		c.Tick()
	}
	if len(adj.calls) != 0 {
		t.Errorf("expected no corrections for equal clocks, got %v", adj.calls)
	}
	if c.PPB() != 0 {
		t.Errorf("ppb %d", c.PPB())
	}
}

func TestClampAndHysteresis(t *testing.T) {
	// Source runs 1% fast, far beyond the correction range.
	c, adj := newTestController(t, &rampClocks{srcStep: 101000, dstStep: 100000}, 1)
	for i := 0; i < 500; i++ {
		c.Tick()
	}
	if len(adj.calls) == 0 {
		t.Fatalf("no corrections applied")
	}
	prev := int32(0)
	for i, call := range adj.calls {
		if call.ppb > MaxPPB || call.ppb < -MaxPPB {
			t.Fatalf("call %d out of range: %d", i, call.ppb)
		}
		if call.ppb == prev {
			t.Fatalf("call %d repeats previous value %d", i, call.ppb)
		}
		prev = call.ppb
	}
	if c.PPB() != MaxPPB {
		t.Errorf("expected saturation at %d, got %d", MaxPPB, c.PPB())
	}
	if len(adj.calls) != 1 {
		t.Errorf("saturated output re-emitted: %v", adj.calls)
	}
}

func TestNegativeClamp(t *testing.T) {
	c, _ := newTestController(t, &rampClocks{srcStep: 99000, dstStep: 100000}, 1)
	for i := 0; i < 50; i++ {
		c.Tick()
	}
	if c.PPB() != -MaxPPB {
		t.Errorf("expected %d, got %d", -MaxPPB, c.PPB())
	}
}

func TestCounterWrap(t *testing.T) {
	clocks := &rampClocks{src: 0xfffff000, dst: 0xffffff00, srcStep: 1000, dstStep: 1000}
	c, adj := newTestController(t, clocks, 1)
	for i := 0; i < 100; i++ {
		c.Tick()
	}
	if c.State() != Locked {
		t.Fatalf("not locked across wrap: %s", c.State())
	}
	if len(adj.calls) != 0 {
		t.Errorf("wrap produced corrections: %v", adj.calls)
	}
}

func TestResetParksAndUnlocks(t *testing.T) {
	c, adj := newTestController(t, &rampClocks{srcStep: 101000, dstStep: 100000}, 1)
	for i := 0; i < 20; i++ {
		c.Tick()
	}
	c.Reset()
	if c.State() != Unlocked {
		t.Errorf("state after reset %s", c.State())
	}
	last := adj.calls[len(adj.calls)-1]
	if last != (adjustCall{1, 0}) {
		t.Errorf("reset did not park correction: %+v", last)
	}
	if st := c.Status(); st.Samples != 0 || st.PPBStats.Windows != 0 {
		t.Errorf("reset kept statistics: %+v", st)
	}
}

func TestExitAppliesZero(t *testing.T) {
	c, adj := newTestController(t, &rampClocks{srcStep: 1000, dstStep: 1000}, 1)
	c.Exit()
	if len(adj.calls) != 1 || adj.calls[0] != (adjustCall{1, 0}) {
		t.Errorf("exit calls %v", adj.calls)
	}
}

func TestSetDomains(t *testing.T) {
	c, adj := newTestController(t, &rampClocks{srcStep: 101000, dstStep: 100000}, 1)
	for i := 0; i < 20; i++ {
		c.Tick()
	}

	if err := c.SetDomains(2, 2); !errors.Is(err, ErrInvalidDomains) {
		t.Fatalf("expected ErrInvalidDomains, got %v", err)
	}
	if c.State() != Locked {
		t.Errorf("rejected reassignment changed state to %s", c.State())
	}

	if err := c.SetDomains(2, 3); err != nil {
		t.Fatalf("SetDomains failed: %v", err)
	}
	if c.State() != Unlocked {
		t.Errorf("reassignment did not unlock: %s", c.State())
	}
	if src, dst := c.Domains(); src != 2 || dst != 3 {
		t.Errorf("domains %d->%d", src, dst)
	}
	last := adj.calls[len(adj.calls)-1]
	if last.domain != 1 || last.ppb != 0 {
		t.Errorf("old destination not parked: %+v", last)
	}
}

func TestEnableRestartsLoop(t *testing.T) {
	c, _ := newTestController(t, &rampClocks{srcStep: 1000, dstStep: 1000}, 1)
	for i := 0; i < 20; i++ {
		c.Tick()
	}
	c.Enable(false)
	c.Enable(true)
	if c.State() != Unlocked {
		t.Errorf("re-enable left state %s", c.State())
	}
}

func TestSnapshotErrorsCounted(t *testing.T) {
	clocks := &rampClocks{fail: true}
	c, _ := newTestController(t, clocks, 1)
	c.Tick()
	c.Tick()
	st := c.Status()
	if st.SnapshotErrors != 2 || st.State != "unlocked" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestConfigCheck(t *testing.T) {
	bad := []Config{
		{Src: 0, Dst: 0, Decimation: 1},
		{Src: -1, Dst: 1, Decimation: 1},
		{Src: 0, Dst: 99, Decimation: 1},
		{Src: 0, Dst: 1, Decimation: 0},
	}
	for _, cfg := range bad {
		if _, err := New(cfg, &rampClocks{}, nil); err == nil {
			t.Errorf("config %+v accepted", cfg)
		}
	}
}

func TestDump(t *testing.T) {
	c, _ := newTestController(t, &rampClocks{srcStep: 1000, dstStep: 1000}, 1)
	var buf bytes.Buffer
	c.Dump(&buf)
	if !strings.Contains(buf.String(), "state unlocked") {
		t.Errorf("dump output %q", buf.String())
	}
}

func TestClosedLoopConvergence(t *testing.T) {
	for _, drift := range []float64{-50000, 50000, -150000} {
		clocks := sim.NewClocks(3072000)
		clocks.SetDrift(1, drift)
		c, err := New(Config{Src: 0, Dst: 1, Decimation: 1, Enabled: true}, clocks, clocks)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		const steps, settle, tail = 2000, 100, 1000
		var sum int64
		for i := 0; i < steps; i++ {
			clocks.Advance(10 * time.Millisecond)
			c.Tick()
			st := c.Status()
			if i >= settle && (st.BclkErr > 2 || st.BclkErr < -2) {
				t.Fatalf("drift %v: step %d phase error %d bits", drift, i, st.BclkErr)
			}
			if i >= steps-tail {
				sum += int64(c.PPB())
			}
		}

		if c.State() != Locked {
			t.Fatalf("drift %v: state %s", drift, c.State())
		}
		if got := clocks.Correction(1); got != c.PPB() {
			t.Errorf("drift %v: applied %d, controller %d", drift, got, c.PPB())
		}
		mean := float64(sum) / tail
		if d := mean + drift; d > 500 || d < -500 {
			t.Errorf("drift %v: mean correction %.0f ppb, want about %v", drift, mean, -drift)
		}
	}
}
