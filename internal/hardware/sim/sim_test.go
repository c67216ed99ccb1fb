package sim

import (
	"errors"
	"testing"
	"time"

	"rtaudio-pipeline/internal/hardware"
)

func TestSAILoopback(t *testing.T) {
	s := NewSAI(2, 1)
	s.Loopback = true
	s.TxWrite(0, []uint32{1, 2, 3})

	got := make([]uint32, 4)
	s.RxRead(0, got)
	want := []uint32{1, 2, 3, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rx %v, want %v", got, want)
		}
	}
	if w := s.Drain(0); len(w) != 3 {
		t.Errorf("tx queue %v", w)
	}
}

func TestSAIRxOverrun(t *testing.T) {
	s := NewSAI(1, 1)
	s.Depth = 4
	s.Feed(0, []uint32{1, 2, 3, 4, 5})
	if s.RxError() {
		t.Fatalf("overrun latched while receiver disabled")
	}
	s.EnableRx()
	s.Feed(0, []uint32{6})
	if !s.RxError() {
		t.Fatalf("overrun not latched")
	}
	s.EnableTx()
	s.ResetRx()
	if s.RxError() {
		t.Errorf("reset kept error")
	}
	if tx, rx := s.Enabled(); !tx || rx {
		t.Errorf("after ResetRx tx=%v rx=%v, want tx only", tx, rx)
	}
}

func TestSAIResetDirections(t *testing.T) {
	s := NewSAI(1, 1)
	s.EnableTx()
	s.EnableRx()
	s.TxWrite(0, []uint32{1, 2})
	s.Feed(0, []uint32{3, 4})
	s.FailRx()

	s.ResetTx()
	if tx, rx := s.Enabled(); tx || !rx {
		t.Fatalf("after ResetTx tx=%v rx=%v, want rx only", tx, rx)
	}
	if w := s.Drain(0); len(w) != 0 {
		t.Errorf("tx queue not flushed: %v", w)
	}
	if !s.RxError() {
		t.Errorf("ResetTx cleared the receive error")
	}
	got := make([]uint32, 2)
	s.RxRead(0, got)
	if got[0] != 3 || got[1] != 4 {
		t.Errorf("ResetTx flushed the receive queue: %v", got)
	}
}

func TestClocksDriftAndAdjust(t *testing.T) {
	c := NewClocks(1000000)
	c.SetDrift(0, 1500)
	c.Advance(time.Second)
	src, dst, err := c.Snapshot(0, 1)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if src != 1000001 || dst != 1000000 {
		t.Errorf("counters %d %d", src, dst)
	}

	if err := c.Adjust(1, 2500); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	c.Advance(time.Second)
	_, dst, _ = c.Snapshot(0, 1)
	if dst != 2000002 {
		t.Errorf("adjusted counter %d", dst)
	}

	if _, _, err := c.Snapshot(0, hardware.MaxClockDomains); !errors.Is(err, hardware.ErrNoSuchDomain) {
		t.Errorf("out of range domain: %v", err)
	}
}

func TestClocksRealtime(t *testing.T) {
	c := NewClocks(1000)
	now := time.Unix(100, 0)
	c.Now = func() time.Time { return now }
	c.Snapshot(0, 1)
	now = now.Add(2 * time.Second)
	src, _, _ := c.Snapshot(0, 1)
	if src != 2000 {
		t.Errorf("counter %d after 2s, want 2000", src)
	}
}

func TestBoardSet(t *testing.T) {
	b := NewBoard(2, 4, 3072000)
	set := b.Set()
	if _, err := set.Port(2); err != nil {
		t.Fatalf("port 2: %v", err)
	}
	if _, err := set.Port(3); !errors.Is(err, hardware.ErrNoSuchPort) {
		t.Errorf("port 3: %v", err)
	}
}
