package element

import (
	"fmt"
	"io"

	"rtaudio-pipeline/internal/audio"
)

// The AVTP elements only keep the buffers moving; there is no network
// stack behind them.

type avtpSink struct {
	streamID uint64
	periods  uint64
}

func (s *avtpSink) reset() { s.periods = 0 }

func (s *avtpSink) run(e *Element, a *audio.Arena) {
	for _, idx := range e.Inputs {
		in := a.Buffer(idx)
		if in.Available() < e.Period {
			e.underflows++
		}
		in.ReadUpdate(min(in.Available(), e.Period))
	}
	s.periods++
}

func (s *avtpSink) dump(w io.Writer) {
	fmt.Fprintf(w, "  avtp stream %#016x periods %d\n", s.streamID, s.periods)
}

type avtpSource struct {
	streamID uint64
	periods  uint64
}

func (s *avtpSource) reset() { s.periods = 0 }

func (s *avtpSource) run(e *Element, a *audio.Arena) {
	for _, idx := range e.Outputs {
		out := a.Buffer(idx)
		if out.Free() < e.Period {
			e.overflows++
			continue
		}
		out.WriteSilence(e.Period)
	}
	s.periods++
}

func (s *avtpSource) dump(w io.Writer) {
	fmt.Fprintf(w, "  avtp stream %#016x periods %d\n", s.streamID, s.periods)
}
