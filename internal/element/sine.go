package element

import (
	"fmt"
	"io"
	"math"

	"rtaudio-pipeline/internal/audio"
)

type sine struct {
	freq      float64
	amplitude float64
	dphase    float64

	// wrap is the phase period in samples when the frequency is a whole
	// number of hertz, 0 otherwise.
	wrap  uint64
	phase uint64
}

func newSine(c *SineConfig, rate int) *sine {
	s := &sine{
		freq:      c.Freq,
		amplitude: c.Amplitude,
		dphase:    2 * math.Pi * c.Freq / float64(rate),
	}
	if c.Freq == math.Trunc(c.Freq) {
		s.wrap = uint64(rate)
	}
	return s
}

func (s *sine) reset() {
	s.phase = 0
}

func (s *sine) run(e *Element, a *audio.Arena) {
	out := a.Buffer(e.Outputs[0])
	if out.Free() < e.Period {
		e.overflows++
		return
	}
	for i := 0; i < e.Period; i++ {
		v := s.amplitude * math.Sin(float64(s.phase)*s.dphase)
		out.Put(i, audio.SampleFromFloat(v))
		s.phase++
		if s.phase == s.wrap {
			s.phase = 0
		}
	}
	out.WriteUpdate(e.Period)
}

func (s *sine) dump(w io.Writer) {
	fmt.Fprintf(w, "  sine freq %g Hz amplitude %g phase %d\n", s.freq, s.amplitude, s.phase)
}
