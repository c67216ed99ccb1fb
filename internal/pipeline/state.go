package pipeline

import (
	"time"

	"rtaudio-pipeline/internal/element"
	"rtaudio-pipeline/internal/stats"
)

type BufferState struct {
	Index     int `json:"index"`
	Size      int `json:"size"`
	Read      int `json:"read"`
	Write     int `json:"write"`
	Available int `json:"available"`
}

type ElementState struct {
	element.Status
	Stalled   bool   `json:"stalled"`
	Runs      uint64 `json:"runs"`
	Faults    uint64 `json:"faults"`
	LastError string `json:"lastError,omitempty"`
}

// State is a point-in-time view of a pipeline, taken between two periods.
type State struct {
	ID       int            `json:"id"`
	Name     string         `json:"name"`
	Time     time.Time      `json:"time"`
	Steps    uint64         `json:"steps"`
	Buffers  []BufferState  `json:"buffers"`
	Elements []ElementState `json:"elements"`
	Timing   stats.Result   `json:"timing"`
}

func (p *Pipeline) state() State {
	st := State{
		ID:       p.id,
		Name:     p.name,
		Time:     time.Now(),
		Steps:    p.steps,
		Buffers:  make([]BufferState, p.arena.Len()),
		Elements: make([]ElementState, len(p.slots)),
		Timing:   p.timing.Result,
	}
	for i := range st.Buffers {
		r := p.arena.Buffer(i)
		st.Buffers[i] = BufferState{
			Index:     i,
			Size:      r.Size(),
			Read:      r.ReadPos(),
			Write:     r.WritePos(),
			Available: r.Available(),
		}
	}
	for i := range p.slots {
		s := &p.slots[i]
		es := ElementState{
			Status:  s.elem.Status(),
			Stalled: s.stalled,
			Runs:    s.runs,
			Faults:  s.faults,
		}
		if s.lastErr != nil {
			es.LastError = s.lastErr.Error()
		}
		st.Elements[i] = es
	}
	return st
}

// ElementInfo is the static description of one element.
type ElementInfo struct {
	ID      int    `json:"id"`
	Type    string `json:"type"`
	Inputs  []int  `json:"inputs"`
	Outputs []int  `json:"outputs"`
}

// Info describes the static layout of a pipeline. It never changes after
// Build and may be read from any goroutine.
type Info struct {
	ID         int           `json:"id"`
	Name       string        `json:"name"`
	Period     int           `json:"period"`
	SampleRate int           `json:"sampleRate"`
	Buffers    int           `json:"buffers"`
	Elements   []ElementInfo `json:"elements"`
}

func (p *Pipeline) Info() Info {
	info := Info{
		ID:         p.id,
		Name:       p.name,
		Period:     p.period,
		SampleRate: p.sampleRate,
		Buffers:    p.arena.Len(),
		Elements:   make([]ElementInfo, len(p.slots)),
	}
	for i := range p.slots {
		e := p.slots[i].elem
		info.Elements[i] = ElementInfo{ID: e.ID, Type: e.Type.String(), Inputs: e.Inputs, Outputs: e.Outputs}
	}
	return info
}
