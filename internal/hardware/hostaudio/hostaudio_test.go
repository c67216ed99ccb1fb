package hostaudio

import (
	"encoding/binary"
	"math"
	"testing"

	"rtaudio-pipeline/internal/audio"
)

type fakePlayer struct {
	playing bool
	closed  bool
}

func (p *fakePlayer) Play()  { p.playing = true }
func (p *fakePlayer) Pause() { p.playing = false }

func (p *fakePlayer) Close() error {
	p.closed = true
	return nil
}

func TestSPSC(t *testing.T) {
	q := newSPSC(5)
	if q.cap() != 8 {
		t.Fatalf("cap = %d, want 8", q.cap())
	}
	if n := q.push([]float32{1, 2, 3, 4, 5, 6}); n != 6 {
		t.Fatalf("push = %d", n)
	}
	out := make([]float32, 4)
	if n := q.pop(out); n != 4 || out[0] != 1 || out[3] != 4 {
		t.Fatalf("pop = %d %v", n, out)
	}
	// wraps around the end of the buffer
	if n := q.push([]float32{7, 8, 9, 10, 11, 12, 13}); n != 6 {
		t.Fatalf("push into 6 free = %d", n)
	}
	if q.len() != 8 {
		t.Fatalf("len = %d, want 8", q.len())
	}
	all := make([]float32, 10)
	n := q.pop(all)
	want := []float32{5, 6, 7, 8, 9, 10, 11, 12}
	if n != len(want) {
		t.Fatalf("pop = %d", n)
	}
	for i, v := range want {
		if all[i] != v {
			t.Fatalf("pop[%d] = %v, want %v", i, all[i], v)
		}
	}
	q.push([]float32{1})
	q.discard()
	if q.len() != 0 {
		t.Errorf("len after discard = %d", q.len())
	}
}

func decode(p []byte) []float32 {
	out := make([]float32, len(p)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[4*i:]))
	}
	return out
}

func TestSAIPlayback(t *testing.T) {
	s := newSAI(1, 2, 16)
	fp := &fakePlayer{}
	s.out = fp

	s.EnableTx()
	if !fp.playing {
		t.Fatalf("EnableTx did not start the player")
	}
	s.TxWrite(0, []uint32{audio.SampleFromFloat(0.5), audio.SampleFromFloat(-0.5)})
	s.TxWrite(1, []uint32{audio.SampleFromFloat(1)}) // only line 0 is played

	p := make([]byte, 4*4)
	s.read(p)
	got := decode(p)
	if math.Abs(float64(got[0])-0.5) > 1e-6 || math.Abs(float64(got[1])+0.5) > 1e-6 {
		t.Errorf("played %v", got[:2])
	}
	if got[2] != 0 || got[3] != 0 {
		t.Errorf("underrun not filled with silence: %v", got[2:])
	}
	if s.Underruns() != 1 || s.TxError() {
		t.Errorf("underruns %d txErr %v", s.Underruns(), s.TxError())
	}

	s.Strict = true
	s.read(p)
	if !s.TxError() {
		t.Errorf("strict underrun not latched")
	}

	s.TxWrite(0, make([]uint32, 8))
	s.ResetTx()
	if fp.playing || s.TxError() {
		t.Errorf("Reset left playing=%v txErr=%v", fp.playing, s.TxError())
	}
	s.read(p)
	if s.queue.len() != 0 {
		t.Errorf("queue not flushed on reset")
	}

	if err := s.Close(); err != nil || !fp.closed {
		t.Errorf("Close: %v closed=%v", err, fp.closed)
	}
}

func TestSAIOverflow(t *testing.T) {
	s := newSAI(1, 1, 4)
	s.TxWrite(0, make([]uint32, 6))
	if s.Dropped() != 2 {
		t.Errorf("Dropped = %d, want 2", s.Dropped())
	}
	words := []uint32{1, 2}
	s.RxRead(0, words)
	if words[0] != 0 || words[1] != 0 {
		t.Errorf("RxRead = %v", words)
	}
}

func TestNewRejectsSlots(t *testing.T) {
	if _, err := New(1, 3, 48000, 480); err == nil {
		t.Errorf("3 slots accepted")
	}
}
