// Package pipeline builds a fixed graph of audio elements over an arena of
// rings and runs it once per period.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"rtaudio-pipeline/internal/audio"
	"rtaudio-pipeline/internal/element"
	"rtaudio-pipeline/internal/hardware"
	"rtaudio-pipeline/internal/stats"
)

const timingWindow = 1000

var ErrStopped = errors.New("pipeline stopped")

type slot struct {
	elem    *element.Element
	stalled bool
	runs    uint64
	faults  uint64
	lastErr error
}

// Fault describes an element that stopped being scheduled.
type Fault struct {
	Pipeline int
	Element  int
	Type     string
	Err      error
	Time     time.Time
}

// Pipeline owns the arena and the elements built from a Config. Step and
// everything it calls run on one goroutine; other goroutines talk to the
// pipeline through Submit and Exec.
type Pipeline struct {
	id         int
	name       string
	period     int
	sampleRate int

	arena *audio.Arena
	slots []slot

	cmds    chan request
	stopped chan struct{}

	steps  uint64
	timing *stats.Stats

	// OnFault, when set before Start, is called on the scheduler goroutine
	// each time an element stalls. It must not block.
	OnFault func(Fault)
}

// Build validates cfg and instantiates the pipeline. Nothing is kept on
// error.
func Build(cfg Config, hw *hardware.Set) (*Pipeline, error) {
	if cfg.Period <= 0 || cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("pipeline %d: period %d rate %d", cfg.ID, cfg.Period, cfg.SampleRate)
	}
	cfg.applyDefaults()

	rings := make([]*audio.Ring, len(cfg.Buffers))
	for i, bc := range cfg.Buffers {
		if err := checkBuffer(i, bc); err != nil {
			return nil, fmt.Errorf("pipeline %d: %w", cfg.ID, err)
		}
		rings[i] = audio.NewRing(bc.Storage, bc.Size())
		rings[i].SetSilence(bc.Silence)
	}
	arena := audio.NewArena(rings...)

	for i := range cfg.Elements {
		if err := element.CheckConfig(&cfg.Elements[i]); err != nil {
			return nil, fmt.Errorf("pipeline %d: element %d: %w", cfg.ID, i, err)
		}
	}
	if err := checkWiring(&cfg, arena); err != nil {
		return nil, fmt.Errorf("pipeline %d: %w", cfg.ID, err)
	}

	slots := make([]slot, len(cfg.Elements))
	for i := range cfg.Elements {
		e, err := element.New(i, &cfg.Elements[i], hw)
		if err != nil {
			return nil, fmt.Errorf("pipeline %d: element %d: %w", cfg.ID, i, err)
		}
		slots[i].elem = e
	}

	p := &Pipeline{
		id:         cfg.ID,
		name:       cfg.Name,
		period:     cfg.Period,
		sampleRate: cfg.SampleRate,
		arena:      arena,
		slots:      slots,
		cmds:       make(chan request, cfg.QueueDepth),
		stopped:    make(chan struct{}),
		timing:     stats.New("period_ns", timingWindow),
	}
	arena.Reset()
	log.Printf("[pipeline %d] built %q: %d buffers, %d elements, period %d @ %d Hz",
		p.id, p.name, len(rings), len(slots), p.period, p.sampleRate)
	return p, nil
}

func (p *Pipeline) ID() int         { return p.id }
func (p *Pipeline) Name() string    { return p.name }
func (p *Pipeline) Period() int     { return p.period }
func (p *Pipeline) SampleRate() int { return p.sampleRate }
func (p *Pipeline) Elements() int   { return len(p.slots) }

// PeriodDuration is the wall-clock length of one period.
func (p *Pipeline) PeriodDuration() time.Duration {
	return time.Duration(p.period) * time.Second / time.Duration(p.sampleRate)
}

// Step applies pending commands, then runs every element that is not
// stalled, in order.
func (p *Pipeline) Step() {
	start := time.Now()
	p.drain()

	for i := range p.slots {
		s := &p.slots[i]
		if s.stalled {
			continue
		}
		s.runs++
		if err := s.elem.Run(p.arena); err != nil {
			s.stalled = true
			s.faults++
			s.lastErr = err
			log.Printf("[pipeline %d] element %d (%s) stalled: %v", p.id, i, s.elem.Type, err)
			if p.OnFault != nil {
				p.OnFault(Fault{Pipeline: p.id, Element: i, Type: s.elem.Type.String(), Err: err, Time: start})
			}
		}
	}

	p.steps++
	p.timing.Add(time.Since(start).Nanoseconds())
}

func (p *Pipeline) drain() {
	for {
		select {
		case req := <-p.cmds:
			if !req.claim.CompareAndSwap(false, true) {
				continue
			}
			res := p.apply(req.cmd)
			if req.done != nil {
				req.done <- res
			}
		default:
			return
		}
	}
}

// Start drives Step from tick until ctx is done, then exits every element.
func (p *Pipeline) Start(ctx context.Context, tick <-chan time.Time) error {
	log.Printf("[pipeline %d] started", p.id)
	defer func() {
		p.Exit()
		close(p.stopped)
		log.Printf("[pipeline %d] stopped after %d periods", p.id, p.steps)
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			p.Step()
		}
	}
}

// Run is Start with a ticker at the pipeline's own period.
func (p *Pipeline) Run(ctx context.Context) error {
	t := time.NewTicker(p.PeriodDuration())
	defer t.Stop()
	return p.Start(ctx, t.C)
}

// Submit validates cmd and queues it for the next period boundary. A
// rejected command changes nothing. The returned channel receives the
// result once the command has been applied.
func (p *Pipeline) Submit(cmd Command) (<-chan Result, error) {
	req, err := p.submit(cmd)
	if err != nil {
		return nil, err
	}
	return req.done, nil
}

func (p *Pipeline) submit(cmd Command) (request, error) {
	if err := p.Validate(cmd); err != nil {
		return request{}, err
	}
	req := request{cmd: cmd, done: make(chan Result, 1), claim: new(atomic.Bool)}
	select {
	case p.cmds <- req:
		return req, nil
	default:
		return request{}, ErrBusy
	}
}

// Exec submits cmd and waits for it to be applied. When ctx ends first
// the command is withdrawn and never applied, unless the scheduler has
// already picked it up; then Exec waits the remainder of that period for
// its result.
func (p *Pipeline) Exec(ctx context.Context, cmd Command) (Result, error) {
	req, err := p.submit(cmd)
	if err != nil {
		return Result{}, err
	}
	select {
	case res := <-req.done:
		return res, res.Err
	case <-p.stopped:
		if req.claim.CompareAndSwap(false, true) {
			return Result{}, ErrStopped
		}
		res := <-req.done
		return res, res.Err
	case <-ctx.Done():
		if req.claim.CompareAndSwap(false, true) {
			return Result{}, ctx.Err()
		}
		res := <-req.done
		return res, res.Err
	}
}

func (p *Pipeline) reset() {
	p.arena.Reset()
	for i := range p.slots {
		s := &p.slots[i]
		s.elem.Reset(p.arena)
		s.stalled = false
		s.lastErr = nil
	}
	p.timing.Reset()
}

// Exit releases element side effects. Start calls it on the way out; call
// it directly only for a pipeline driven by Step.
func (p *Pipeline) Exit() {
	for i := range p.slots {
		p.slots[i].elem.Exit()
	}
}

func (p *Pipeline) dump(w io.Writer) {
	fmt.Fprintf(w, "pipeline %d %q period %d rate %d steps %d\n", p.id, p.name, p.period, p.sampleRate, p.steps)
	for i := 0; i < p.arena.Len(); i++ {
		r := p.arena.Buffer(i)
		fmt.Fprintf(w, "buffer %d size %d read %d write %d available %d\n",
			i, r.Size(), r.ReadPos(), r.WritePos(), r.Available())
	}
	for i := range p.slots {
		s := &p.slots[i]
		s.elem.Dump(w)
		if s.stalled {
			fmt.Fprintf(w, "  STALLED: %v\n", s.lastErr)
		}
		fmt.Fprintf(w, "  runs %d faults %d\n", s.runs, s.faults)
	}
	p.timing.Print(w)
}
