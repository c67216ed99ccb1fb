package main

import (
	"context"
	"log"
	"sync"

	"rtaudio-pipeline/internal/hardware"
	"rtaudio-pipeline/internal/pipeline"
)

// runner owns the scheduler goroutine of the active pipeline and swaps it
// when the configuration changes.
type runner struct {
	ctx     context.Context
	hw      *hardware.Set
	reg     *pipeline.Registry
	onFault func(pipeline.Fault)

	mu     sync.Mutex
	id     int
	cancel context.CancelFunc
	done   chan struct{}
}

func newRunner(ctx context.Context, hw *hardware.Set, reg *pipeline.Registry, onFault func(pipeline.Fault)) *runner {
	return &runner{ctx: ctx, hw: hw, reg: reg, onFault: onFault}
}

// start builds cfg and replaces the running pipeline with it. If the build
// fails the running pipeline is kept.
func (r *runner) start(cfg pipeline.Config) error {
	p, err := pipeline.Build(cfg, r.hw)
	if err != nil {
		return err
	}
	p.OnFault = r.onFault

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()

	ctx, cancel := context.WithCancel(r.ctx)
	done := make(chan struct{})
	r.id, r.cancel, r.done = p.ID(), cancel, done
	r.reg.Put(p)
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[pipeline %d] scheduler exited: %v", p.ID(), err)
		}
	}()
	log.Printf("Pipeline %d (%s) running, period %v", p.ID(), p.Name(), p.PeriodDuration())
	return nil
}

// stop halts the running pipeline and waits for its elements to exit.
func (r *runner) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *runner) stopLocked() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.reg.Remove(r.id)
	r.cancel, r.done = nil, nil
}
