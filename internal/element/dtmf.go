package element

import (
	"fmt"
	"io"
	"math"

	"rtaudio-pipeline/internal/audio"
)

var (
	dtmfRows = [4]float64{697, 770, 852, 941}
	dtmfCols = [4]float64{1209, 1336, 1477, 1633}

	dtmfKeypad = [4]string{
		"123A",
		"456B",
		"789C",
		"*0#D",
	}
)

// DTMFFrequencies returns the row and column frequencies of a keypad key.
func DTMFFrequencies(key byte) (row, col float64, ok bool) {
	for r, keys := range dtmfKeypad {
		for c := 0; c < len(keys); c++ {
			if keys[c] == key {
				return dtmfRows[r], dtmfCols[c], true
			}
		}
	}
	return 0, 0, false
}

type dtmfState int

const (
	dtmfPlaying dtmfState = iota
	dtmfPause
	dtmfSequencePause
)

func (s dtmfState) String() string {
	switch s {
	case dtmfPlaying:
		return "playing"
	case dtmfPause:
		return "pause"
	case dtmfSequencePause:
		return "sequence_pause"
	}
	return "unknown"
}

type dtmf struct {
	sequence  string
	amplitude float64
	rate      float64

	toneSamples     int
	pauseSamples    int
	seqPauseSamples int

	state  dtmfState
	index  int
	count  int
	w1, w2 float64 // radians per sample of the current key
}

func newDTMF(c *DTMFConfig, rate int) *dtmf {
	seqPause := c.SequencePauseUs
	if seqPause == 0 {
		seqPause = c.PauseUs
	}
	d := &dtmf{
		sequence:        c.Sequence,
		amplitude:       c.Amplitude,
		rate:            float64(rate),
		toneSamples:     max(usToSamples(c.ToneUs, rate), 1),
		pauseSamples:    usToSamples(c.PauseUs, rate),
		seqPauseSamples: usToSamples(seqPause, rate),
	}
	d.reset()
	return d
}

func (d *dtmf) loadKey() {
	f1, f2, _ := DTMFFrequencies(d.sequence[d.index])
	d.w1 = 2 * math.Pi * f1 / d.rate
	d.w2 = 2 * math.Pi * f2 / d.rate
}

func (d *dtmf) reset() {
	d.state = dtmfPlaying
	d.index = 0
	d.count = 0
	d.loadKey()
}

func (d *dtmf) value() float64 {
	if d.state != dtmfPlaying {
		return 0
	}
	n := float64(d.count)
	return d.amplitude / 2 * (math.Sin(n*d.w1) + math.Sin(n*d.w2))
}

// advance moves one sample forward. Zero-length pauses are skipped.
func (d *dtmf) advance() {
	d.count++
	switch d.state {
	case dtmfPlaying:
		if d.count < d.toneSamples {
			return
		}
		d.count = 0
		d.index++
		if d.index == len(d.sequence) {
			d.index = 0
			d.state = dtmfSequencePause
		} else {
			d.state = dtmfPause
		}
		d.loadKey()
		if d.pauseLength() == 0 {
			d.state = dtmfPlaying
		}
	case dtmfPause, dtmfSequencePause:
		if d.count >= d.pauseLength() {
			d.count = 0
			d.state = dtmfPlaying
		}
	}
}

func (d *dtmf) pauseLength() int {
	if d.state == dtmfSequencePause {
		return d.seqPauseSamples
	}
	return d.pauseSamples
}

func (d *dtmf) run(e *Element, a *audio.Arena) {
	out := a.Buffer(e.Outputs[0])
	if out.Free() < e.Period {
		e.overflows++
		return
	}
	for i := 0; i < e.Period; i++ {
		out.Put(i, audio.SampleFromFloat(d.value()))
		d.advance()
	}
	out.WriteUpdate(e.Period)
}

func (d *dtmf) dump(w io.Writer) {
	fmt.Fprintf(w, "  dtmf sequence %q tone %d pause %d sequence pause %d\n",
		d.sequence, d.toneSamples, d.pauseSamples, d.seqPauseSamples)
	fmt.Fprintf(w, "  state %s key %d (%c) count %d\n", d.state, d.index, d.sequence[d.index], d.count)
}
