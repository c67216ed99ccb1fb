// Package presets holds compiled-in pipeline descriptions for the
// reference boards.
package presets

import (
	"errors"
	"fmt"
	"sort"

	"rtaudio-pipeline/internal/element"
	"rtaudio-pipeline/internal/pipeline"
	"rtaudio-pipeline/internal/pll"
)

const (
	SampleRate = 48000
	Period     = 48 // 1 ms
	BufCount   = 4
)

var ErrUnknownPreset = errors.New("unknown preset")

// Requirements lists the hardware a pipeline uses.
type Requirements struct {
	SAIInstances []int // sorted, without duplicates
	Lines        int   // data lines needed on every instance
	Clocks       bool
}

// Require derives the hardware requirements of cfg.
func Require(cfg pipeline.Config) Requirements {
	var req Requirements
	seen := make(map[int]bool)
	for _, e := range cfg.Elements {
		if e.Type == element.TypePLL {
			req.Clocks = true
		}
		if e.SAI == nil || (e.Type != element.TypeSAISink && e.Type != element.TypeSAISource) {
			continue
		}
		for _, l := range e.SAI.Lines {
			if !seen[l.Instance] {
				seen[l.Instance] = true
				req.SAIInstances = append(req.SAIInstances, l.Instance)
			}
			req.Lines = max(req.Lines, l.Line+1)
		}
	}
	sort.Ints(req.SAIInstances)
	return req
}

var presets = map[string]func(id int) pipeline.Config{
	"dtmf-sai":         dtmfSAI,
	"sai-loopback-pll": saiLoopbackPLL,
	"avtp-bridge":      avtpBridge,
}

// Names returns the preset names in sorted order.
func Names() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns a fresh copy of the named preset with the given pipeline id.
func Get(name string, id int) (pipeline.Config, Requirements, error) {
	build, ok := presets[name]
	if !ok {
		return pipeline.Config{}, Requirements{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	cfg := build(id)
	return cfg, Require(cfg), nil
}

func stereo(instance int) *element.SAIConfig {
	return &element.SAIConfig{Lines: []element.SAILine{{
		Instance: instance,
		Line:     0,
		Slots:    2,
		Channels: []element.SAIChannel{{Slot: 0}, {Slot: 1}},
	}}}
}

func buffers(n int) []pipeline.BufferConfig {
	b := make([]pipeline.BufferConfig, n)
	for i := range b {
		b[i] = pipeline.BufferConfig{Count: BufCount}
	}
	return b
}

// dtmfSAI plays a dialing sequence on the left channel and a 1 kHz tone on
// the right through SAI1.
func dtmfSAI(id int) pipeline.Config {
	return pipeline.Config{
		ID:         id,
		Name:       "dtmf-sai",
		Period:     Period,
		SampleRate: SampleRate,
		Buffers:    buffers(4),
		Elements: []element.Config{
			{Type: element.TypeDTMF, Outputs: []int{0}, DTMF: &element.DTMFConfig{
				Sequence:        "0123456789*#ABCD",
				Amplitude:       0.5,
				ToneUs:          100000,
				PauseUs:         100000,
				SequencePauseUs: 1000000,
			}},
			{Type: element.TypeSine, Outputs: []int{1}, Sine: &element.SineConfig{Freq: 1000, Amplitude: 0.5}},
			{Type: element.TypeRouting, Inputs: []int{0, 1}, Outputs: []int{2, 3}},
			{Type: element.TypeSAISink, Inputs: []int{2, 3}, SAI: stereo(1)},
		},
	}
}

// saiLoopbackPLL captures SAI1, plays it back on SAI2 and locks the SAI2
// clock domain to SAI1.
func saiLoopbackPLL(id int) pipeline.Config {
	return pipeline.Config{
		ID:         id,
		Name:       "sai-loopback-pll",
		Period:     Period,
		SampleRate: SampleRate,
		Buffers:    buffers(4),
		Elements: []element.Config{
			{Type: element.TypeSAISource, Outputs: []int{0, 1}, SAI: stereo(1)},
			{Type: element.TypeRouting, Inputs: []int{0, 1}, Outputs: []int{2, 3}},
			{Type: element.TypeSAISink, Inputs: []int{2, 3}, SAI: stereo(2)},
			{Type: element.TypePLL, PLL: &pll.Config{Src: 0, Dst: 1, Decimation: 10, Enabled: true}},
		},
	}
}

// avtpBridge moves audio between SAI1 and a pair of AVTP streams.
func avtpBridge(id int) pipeline.Config {
	return pipeline.Config{
		ID:         id,
		Name:       "avtp-bridge",
		Period:     Period,
		SampleRate: SampleRate,
		Buffers:    buffers(6),
		Elements: []element.Config{
			{Type: element.TypeAVTPSource, Outputs: []int{0, 1}, AVTP: &element.AVTPConfig{StreamID: 0x91e0f000fe000001, Channels: 2}},
			{Type: element.TypeRouting, Inputs: []int{0, 1}, Outputs: []int{2, 3}},
			{Type: element.TypeSAISink, Inputs: []int{2, 3}, SAI: stereo(1)},
			{Type: element.TypeSAISource, Outputs: []int{4, 5}, SAI: stereo(1)},
			{Type: element.TypeAVTPSink, Inputs: []int{4, 5}, AVTP: &element.AVTPConfig{StreamID: 0x91e0f000fe000002, Channels: 2}},
		},
	}
}
