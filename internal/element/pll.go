package element

import (
	"errors"
	"fmt"
	"io"

	"rtaudio-pipeline/internal/hardware"
	"rtaudio-pipeline/internal/pll"
)

var ErrNoClocks = errors.New("no bit clock counters available")

type pllElement struct {
	ctl *pll.Controller
}

func newPLLElement(c *pll.Config, hw *hardware.Set) (*pllElement, error) {
	if hw == nil || hw.Clocks == nil {
		return nil, ErrNoClocks
	}
	ctl, err := pll.New(*c, hw.Clocks, hw.Adjuster)
	if err != nil {
		return nil, err
	}
	return &pllElement{ctl: ctl}, nil
}

func (p *pllElement) run()             { p.ctl.Tick() }
func (p *pllElement) reset()           { p.ctl.Reset() }
func (p *pllElement) exit()            { p.ctl.Exit() }
func (p *pllElement) dump(w io.Writer) { p.ctl.Dump(w) }

// PLLEnable turns the recovery loop on or off.
func (e *Element) PLLEnable(on bool) error {
	if e.Type != TypePLL {
		return fmt.Errorf("pll enable on %s element %d: %w", e.Type, e.ID, ErrWrongType)
	}
	e.pll.ctl.Enable(on)
	return nil
}

// CheckPLLDomains validates a domain reassignment without applying it.
func (e *Element) CheckPLLDomains(src, dst int) error {
	if e.Type != TypePLL {
		return fmt.Errorf("pll domains on %s element %d: %w", e.Type, e.ID, ErrWrongType)
	}
	return pll.CheckDomains(src, dst)
}

// PLLSetDomains reassigns the clock domains, restarting the loop.
func (e *Element) PLLSetDomains(src, dst int) error {
	if err := e.CheckPLLDomains(src, dst); err != nil {
		return err
	}
	return e.pll.ctl.SetDomains(src, dst)
}

// PLLStatus returns the loop status, or nil for other element types.
func (e *Element) PLLStatus() *pll.Status {
	if e.Type != TypePLL {
		return nil
	}
	st := e.pll.ctl.Status()
	return &st
}
