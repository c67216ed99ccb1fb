package element

import (
	"fmt"
	"io"

	"rtaudio-pipeline/internal/audio"
)

// Disconnected marks an output that plays silence.
const Disconnected = -1

type routing struct {
	routes  []int // output position -> input position or Disconnected
	scratch []audio.Sample
}

func newRouting(c *RoutingConfig, nIn, nOut, period int) *routing {
	r := &routing{
		routes:  make([]int, nOut),
		scratch: make([]audio.Sample, period),
	}
	for o := range r.routes {
		switch {
		case c != nil && c.Routes != nil:
			r.routes[o] = c.Routes[o]
		case o < nIn:
			r.routes[o] = o
		default:
			r.routes[o] = Disconnected
		}
	}
	return r
}

// reset clears transient state only; runtime connections survive.
func (r *routing) reset() {
	clear(r.scratch)
}

func (r *routing) run(e *Element, a *audio.Arena) {
	for o, idx := range e.Outputs {
		out := a.Buffer(idx)
		if out.Free() < e.Period {
			e.overflows++
			continue
		}
		in := r.routes[o]
		if in == Disconnected {
			out.WriteSilence(e.Period)
			continue
		}
		src := a.Buffer(e.Inputs[in])
		if src.Available() < e.Period {
			e.underflows++
			out.WriteSilence(e.Period)
			continue
		}
		src.Peek(r.scratch, 0)
		out.Write(r.scratch)
	}
	for _, idx := range e.Inputs {
		src := a.Buffer(idx)
		src.ReadUpdate(min(src.Available(), e.Period))
	}
}

func (r *routing) dump(w io.Writer) {
	fmt.Fprintf(w, "  routes %v\n", r.routes)
}

// CheckConnect validates a routing change without applying it. input may
// be Disconnected.
func (e *Element) CheckConnect(output, input int) error {
	if e.Type != TypeRouting {
		return fmt.Errorf("connect on %s element %d: %w", e.Type, e.ID, ErrWrongType)
	}
	if output < 0 || output >= len(e.Outputs) {
		return fmt.Errorf("output %d of %d: %w", output, len(e.Outputs), ErrBadIndex)
	}
	if input != Disconnected && (input < 0 || input >= len(e.Inputs)) {
		return fmt.Errorf("input %d of %d: %w", input, len(e.Inputs), ErrBadIndex)
	}
	return nil
}

// Connect routes output to input, both positions in the element's lists.
func (e *Element) Connect(output, input int) error {
	if err := e.CheckConnect(output, input); err != nil {
		return err
	}
	e.routing.routes[output] = input
	return nil
}

// Disconnect silences output.
func (e *Element) Disconnect(output int) error {
	return e.Connect(output, Disconnected)
}

// Routes returns a copy of the current routing table, or nil for other
// element types.
func (e *Element) Routes() []int {
	if e.Type != TypeRouting {
		return nil
	}
	return append([]int(nil), e.routing.routes...)
}
