package pipeline

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"rtaudio-pipeline/internal/element"
)

var (
	ErrInvalidElement  = errors.New("invalid element")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrBusy            = errors.New("command queue full")
)

type Kind int

const (
	ResetPipeline Kind = iota + 1
	ResetElement
	Connect
	Disconnect
	PLLEnable
	PLLDisable
	PLLSetDomains
	Dump
	Snapshot
)

var kindNames = map[Kind]string{
	ResetPipeline: "reset_pipeline",
	ResetElement:  "reset_element",
	Connect:       "connect",
	Disconnect:    "disconnect",
	PLLEnable:     "pll_enable",
	PLLDisable:    "pll_disable",
	PLLSetDomains: "pll_set_domains",
	Dump:          "dump",
	Snapshot:      "snapshot",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Command is an immutable control request applied by the scheduler between
// two periods. A and B carry the kind-specific arguments:
//
//	Connect        A = output, B = input
//	Disconnect     A = output
//	PLLSetDomains  A = source domain, B = destination domain
type Command struct {
	Kind    Kind
	Element int
	A, B    int
}

// Result is the outcome of an applied command.
type Result struct {
	Err      error
	Text     string
	Snapshot *State
}

// request is one queued command. claim is taken exactly once, either by
// the scheduler before applying the command or by a caller giving up on
// it, so an abandoned command is never applied.
type request struct {
	cmd   Command
	done  chan Result
	claim *atomic.Bool
}

func (p *Pipeline) element(id int) (*element.Element, error) {
	if id < 0 || id >= len(p.slots) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidElement, id, len(p.slots))
	}
	return p.slots[id].elem, nil
}

// Validate checks cmd against the pipeline's static layout. It only reads
// state that never changes after Build, so it is safe from any goroutine.
func (p *Pipeline) Validate(cmd Command) error {
	switch cmd.Kind {
	case ResetPipeline, Dump, Snapshot:
		return nil
	case ResetElement:
		_, err := p.element(cmd.Element)
		return err
	case Connect, Disconnect:
		e, err := p.element(cmd.Element)
		if err != nil {
			return err
		}
		in := cmd.B
		if cmd.Kind == Disconnect {
			in = element.Disconnected
		}
		return argErr(e.CheckConnect(cmd.A, in))
	case PLLEnable, PLLDisable:
		e, err := p.element(cmd.Element)
		if err != nil {
			return err
		}
		if e.Type != element.TypePLL {
			return fmt.Errorf("%w: element %d is %s", ErrInvalidElement, cmd.Element, e.Type)
		}
		return nil
	case PLLSetDomains:
		e, err := p.element(cmd.Element)
		if err != nil {
			return err
		}
		return argErr(e.CheckPLLDomains(cmd.A, cmd.B))
	}
	return fmt.Errorf("%w: %d", ErrUnknownCommand, int(cmd.Kind))
}

func argErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, element.ErrWrongType):
		return fmt.Errorf("%w: %w", ErrInvalidElement, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
}

// apply runs on the scheduler goroutine. cmd has already been validated.
func (p *Pipeline) apply(cmd Command) Result {
	switch cmd.Kind {
	case ResetPipeline:
		p.reset()
		log.Printf("[pipeline %d] reset", p.id)
	case ResetElement:
		s := &p.slots[cmd.Element]
		s.elem.Reset(p.arena)
		s.stalled = false
		s.lastErr = nil
		log.Printf("[pipeline %d] element %d reset", p.id, cmd.Element)
	case Connect:
		return Result{Err: p.slots[cmd.Element].elem.Connect(cmd.A, cmd.B)}
	case Disconnect:
		return Result{Err: p.slots[cmd.Element].elem.Disconnect(cmd.A)}
	case PLLEnable, PLLDisable:
		return Result{Err: p.slots[cmd.Element].elem.PLLEnable(cmd.Kind == PLLEnable)}
	case PLLSetDomains:
		return Result{Err: p.slots[cmd.Element].elem.PLLSetDomains(cmd.A, cmd.B)}
	case Dump:
		var b strings.Builder
		p.dump(&b)
		return Result{Text: b.String()}
	case Snapshot:
		st := p.state()
		return Result{Snapshot: &st}
	}
	return Result{}
}
