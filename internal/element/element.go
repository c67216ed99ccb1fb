package element

import (
	"errors"
	"fmt"
	"io"

	"rtaudio-pipeline/internal/audio"
	"rtaudio-pipeline/internal/hardware"
	"rtaudio-pipeline/internal/pll"
)

type Type int

const (
	TypeDTMF Type = iota + 1
	TypeSine
	TypeRouting
	TypeSAISink
	TypeSAISource
	TypeAVTPSink
	TypeAVTPSource
	TypePLL
)

var typeNames = map[Type]string{
	TypeDTMF:       "dtmf",
	TypeSine:       "sine",
	TypeRouting:    "routing",
	TypeSAISink:    "sai_sink",
	TypeSAISource:  "sai_source",
	TypeAVTPSink:   "avtp_sink",
	TypeAVTPSource: "avtp_source",
	TypePLL:        "pll",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseType maps a type name back to its Type.
func ParseType(name string) (Type, bool) {
	for t, n := range typeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

var (
	// ErrFIFO is returned by Run when an SAI FIFO underran or overran.
	ErrFIFO = errors.New("sai fifo error")

	ErrWrongType = errors.New("operation not supported by element type")
	ErrBadIndex  = errors.New("index out of range")
)

// Element is one unit of the pipeline. It is a closed variant over the
// element types: exactly one of the variant pointers is set, matching Type.
// Buffer bindings are indices into the pipeline's arena and never change
// after New.
type Element struct {
	ID         int
	Type       Type
	Period     int
	SampleRate int
	Inputs     []int
	Outputs    []int

	underflows uint64
	overflows  uint64

	dtmf       *dtmf
	sine       *sine
	routing    *routing
	saiSink    *saiSink
	saiSource  *saiSource
	avtpSink   *avtpSink
	avtpSource *avtpSource
	pll        *pllElement
}

// New validates cfg and builds the element, binding hardware from hw.
func New(id int, cfg *Config, hw *hardware.Set) (*Element, error) {
	if err := CheckConfig(cfg); err != nil {
		return nil, err
	}
	e := &Element{
		ID:         id,
		Type:       cfg.Type,
		Period:     cfg.Period,
		SampleRate: cfg.SampleRate,
		Inputs:     append([]int(nil), cfg.Inputs...),
		Outputs:    append([]int(nil), cfg.Outputs...),
	}

	var err error
	switch cfg.Type {
	case TypeDTMF:
		e.dtmf = newDTMF(cfg.DTMF, cfg.SampleRate)
	case TypeSine:
		e.sine = newSine(cfg.Sine, cfg.SampleRate)
	case TypeRouting:
		e.routing = newRouting(cfg.Routing, len(cfg.Inputs), len(cfg.Outputs), cfg.Period)
	case TypeSAISink:
		e.saiSink, err = newSAISink(cfg.SAI, cfg.Period, hw)
	case TypeSAISource:
		e.saiSource, err = newSAISource(cfg.SAI, cfg.Period, hw)
	case TypeAVTPSink:
		e.avtpSink = &avtpSink{streamID: cfg.AVTP.StreamID}
	case TypeAVTPSource:
		e.avtpSource = &avtpSource{streamID: cfg.AVTP.StreamID}
	case TypePLL:
		e.pll, err = newPLLElement(cfg.PLL, hw)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Run processes exactly one period. An error means a hardware fault; the
// element must not be run again until it is reset.
func (e *Element) Run(a *audio.Arena) error {
	switch e.Type {
	case TypeDTMF:
		e.dtmf.run(e, a)
	case TypeSine:
		e.sine.run(e, a)
	case TypeRouting:
		e.routing.run(e, a)
	case TypeSAISink:
		return e.saiSink.run(e, a)
	case TypeSAISource:
		return e.saiSource.run(e, a)
	case TypeAVTPSink:
		e.avtpSink.run(e, a)
	case TypeAVTPSource:
		e.avtpSource.run(e, a)
	case TypePLL:
		e.pll.run()
	}
	return nil
}

// Reset clears transient state and re-silences the outputs. Wiring and
// derived configuration are kept.
func (e *Element) Reset(a *audio.Arena) {
	e.underflows = 0
	e.overflows = 0
	for _, o := range e.Outputs {
		a.Buffer(o).Reset()
	}
	switch e.Type {
	case TypeDTMF:
		e.dtmf.reset()
	case TypeSine:
		e.sine.reset()
	case TypeRouting:
		e.routing.reset()
	case TypeSAISink:
		e.saiSink.reset()
	case TypeSAISource:
		e.saiSource.reset()
	case TypeAVTPSink:
		e.avtpSink.reset()
	case TypeAVTPSource:
		e.avtpSource.reset()
	case TypePLL:
		e.pll.reset()
	}
}

// Exit releases external side effects. Only the PLL has one.
func (e *Element) Exit() {
	if e.Type == TypePLL {
		e.pll.exit()
	}
}

// Dump writes the element state in human-readable form. It does not modify
// the element.
func (e *Element) Dump(w io.Writer) {
	fmt.Fprintf(w, "element %d %s period %d rate %d inputs %v outputs %v\n",
		e.ID, e.Type, e.Period, e.SampleRate, e.Inputs, e.Outputs)
	fmt.Fprintf(w, "  underflows %d overflows %d\n", e.underflows, e.overflows)
	switch e.Type {
	case TypeDTMF:
		e.dtmf.dump(w)
	case TypeSine:
		e.sine.dump(w)
	case TypeRouting:
		e.routing.dump(w)
	case TypeSAISink:
		e.saiSink.dump(w)
	case TypeSAISource:
		e.saiSource.dump(w)
	case TypeAVTPSink:
		e.avtpSink.dump(w)
	case TypeAVTPSource:
		e.avtpSource.dump(w)
	case TypePLL:
		e.pll.dump(w)
	}
}

// Status is a read-only summary of an element for diagnostics.
type Status struct {
	ID         int         `json:"id"`
	Type       string      `json:"type"`
	Inputs     []int       `json:"inputs"`
	Outputs    []int       `json:"outputs"`
	Underflows uint64      `json:"underflows"`
	Overflows  uint64      `json:"overflows"`
	Faults     uint64      `json:"faults,omitempty"`
	Routes     []int       `json:"routes,omitempty"`
	PLL        *pll.Status `json:"pll,omitempty"`
}

func (e *Element) Status() Status {
	st := Status{
		ID:         e.ID,
		Type:       e.Type.String(),
		Inputs:     e.Inputs,
		Outputs:    e.Outputs,
		Underflows: e.underflows,
		Overflows:  e.overflows,
		Routes:     e.Routes(),
		PLL:        e.PLLStatus(),
	}
	switch e.Type {
	case TypeSAISink:
		st.Faults = e.saiSink.faults
	case TypeSAISource:
		st.Faults = e.saiSource.faults
	}
	return st
}
