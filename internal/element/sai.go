package element

import (
	"fmt"
	"io"

	"rtaudio-pipeline/internal/audio"
	"rtaudio-pipeline/internal/hardware"
)

// saiLine is one configured data line with its words buffer. first is the
// position of the line's first channel in the element's buffer list.
type saiLine struct {
	port     hardware.SAI
	line     int
	slots    int
	channels []SAIChannel
	first    int
	words    []uint32
}

type saiPort struct {
	lines   []saiLine
	ports   []hardware.SAI // distinct instances, in configuration order
	started bool
	faults  uint64
}

func newSAIPort(c *SAIConfig, period int, hw *hardware.Set) (*saiPort, error) {
	p := &saiPort{}
	seen := make(map[int]bool)
	first := 0
	for _, l := range c.Lines {
		port, err := hw.Port(l.Instance)
		if err != nil {
			return nil, fmt.Errorf("sai%d: %w", l.Instance, err)
		}
		if l.Line >= port.Lines() {
			return nil, fmt.Errorf("sai%d line %d: %w", l.Instance, l.Line, hardware.ErrNoSuchPort)
		}
		if !seen[l.Instance] {
			seen[l.Instance] = true
			p.ports = append(p.ports, port)
		}
		p.lines = append(p.lines, saiLine{
			port:     port,
			line:     l.Line,
			slots:    l.Slots,
			channels: append([]SAIChannel(nil), l.Channels...),
			first:    first,
			words:    make([]uint32, period*l.Slots),
		})
		first += len(l.Channels)
	}
	return p, nil
}

// reset clears the element's own lines. The instance reset is scoped to
// resetPort's direction so a sibling element on the other direction of the
// same instance keeps running.
func (p *saiPort) reset(resetPort func(hardware.SAI)) {
	p.started = false
	for _, port := range p.ports {
		resetPort(port)
	}
	for i := range p.lines {
		clear(p.lines[i].words)
	}
}

func (p *saiPort) dump(w io.Writer, dir string) {
	fmt.Fprintf(w, "  %s started %v faults %d\n", dir, p.started, p.faults)
	for _, l := range p.lines {
		fmt.Fprintf(w, "  sai%d line %d slots %d channels %d fifo %#x\n",
			l.port.Instance(), l.line, l.slots, len(l.channels), l.port.FIFOAddress(l.line))
	}
}

type saiSink struct {
	saiPort
}

func newSAISink(c *SAIConfig, period int, hw *hardware.Set) (*saiSink, error) {
	p, err := newSAIPort(c, period, hw)
	if err != nil {
		return nil, err
	}
	return &saiSink{*p}, nil
}

func (s *saiSink) reset()           { s.saiPort.reset(hardware.SAI.ResetTx) }
func (s *saiSink) dump(w io.Writer) { s.saiPort.dump(w, "tx") }

func (s *saiSink) run(e *Element, a *audio.Arena) error {
	if !s.started {
		for i := range s.lines {
			l := &s.lines[i]
			clear(l.words)
			l.port.TxWrite(l.line, l.words)
		}
		for _, port := range s.ports {
			port.EnableTx()
		}
		s.started = true
		return nil
	}

	for _, port := range s.ports {
		if port.TxError() {
			s.faults++
			return fmt.Errorf("sai%d tx underrun: %w", port.Instance(), ErrFIFO)
		}
	}

	for i := range s.lines {
		l := &s.lines[i]
		clear(l.words)
		for c, ch := range l.channels {
			in := a.Buffer(e.Inputs[l.first+c])
			if in.Available() < e.Period {
				e.underflows++
				continue
			}
			for n := 0; n < e.Period; n++ {
				l.words[n*l.slots+ch.Slot] = ch.Format.ToWord(in.At(n))
			}
			in.ReadUpdate(e.Period)
		}
		l.port.TxWrite(l.line, l.words)
	}
	return nil
}

type saiSource struct {
	saiPort
}

func newSAISource(c *SAIConfig, period int, hw *hardware.Set) (*saiSource, error) {
	p, err := newSAIPort(c, period, hw)
	if err != nil {
		return nil, err
	}
	return &saiSource{*p}, nil
}

func (s *saiSource) reset()           { s.saiPort.reset(hardware.SAI.ResetRx) }
func (s *saiSource) dump(w io.Writer) { s.saiPort.dump(w, "rx") }

func (s *saiSource) run(e *Element, a *audio.Arena) error {
	if !s.started {
		for _, idx := range e.Outputs {
			out := a.Buffer(idx)
			if out.Free() >= e.Period {
				out.WriteSilence(e.Period)
			}
		}
		for _, port := range s.ports {
			port.EnableRx()
		}
		s.started = true
		return nil
	}

	for _, port := range s.ports {
		if port.RxError() {
			s.faults++
			return fmt.Errorf("sai%d rx overrun: %w", port.Instance(), ErrFIFO)
		}
	}

	for i := range s.lines {
		l := &s.lines[i]
		l.port.RxRead(l.line, l.words)
		for c, ch := range l.channels {
			out := a.Buffer(e.Outputs[l.first+c])
			if out.Free() < e.Period {
				e.overflows++
				continue
			}
			for n := 0; n < e.Period; n++ {
				out.Put(n, ch.Format.FromWord(l.words[n*l.slots+ch.Slot]))
			}
			out.WriteUpdate(e.Period)
		}
	}
	return nil
}
