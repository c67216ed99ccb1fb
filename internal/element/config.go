package element

import (
	"errors"
	"fmt"

	"rtaudio-pipeline/internal/audio"
	"rtaudio-pipeline/internal/hardware"
	"rtaudio-pipeline/internal/pll"
)

// MaxIO bounds the number of input or output buffers of one element.
const MaxIO = 32

// MaxPeriod bounds the samples an element moves per run.
const MaxPeriod = 1 << 20

const MaxAVTPChannels = 8

var ErrConfig = errors.New("invalid element config")

// ConfigError reports a configuration rejected before any element runs.
type ConfigError struct {
	Type   Type
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfig, e.Type, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func configErr(t Type, format string, args ...any) error {
	return &ConfigError{Type: t, Reason: fmt.Sprintf(format, args...)}
}

// Config is the static record an element is built from. Exactly the
// parameter block matching Type is used.
type Config struct {
	Type       Type
	Inputs     []int
	Outputs    []int
	Period     int
	SampleRate int

	DTMF    *DTMFConfig
	Sine    *SineConfig
	Routing *RoutingConfig
	SAI     *SAIConfig
	AVTP    *AVTPConfig
	PLL     *pll.Config
}

type DTMFConfig struct {
	Sequence        string
	Amplitude       float64
	ToneUs          int
	PauseUs         int
	SequencePauseUs int // 0 means same as PauseUs
}

type SineConfig struct {
	Freq      float64
	Amplitude float64
}

// RoutingConfig holds the initial route of every output, as a position in
// the element's input list, or -1 for silence. A nil Routes connects output
// i to input i where that input exists.
type RoutingConfig struct {
	Routes []int
}

type SAIChannel struct {
	Slot   int
	Format audio.Format
}

// SAILine maps channels onto the TDM slots of one SAI data line. Buffers
// are bound to channels in line order, then channel order.
type SAILine struct {
	Instance int
	Line     int
	Slots    int
	Channels []SAIChannel
}

type SAIConfig struct {
	Lines []SAILine
}

// Channels returns the total channel count across lines.
func (c *SAIConfig) Channels() int {
	n := 0
	for _, l := range c.Lines {
		n += len(l.Channels)
	}
	return n
}

type AVTPConfig struct {
	StreamID uint64
	Channels int
}

func arity(cfg *Config, in, out int) error {
	if len(cfg.Inputs) != in {
		return configErr(cfg.Type, "%d inputs, want %d", len(cfg.Inputs), in)
	}
	if len(cfg.Outputs) != out {
		return configErr(cfg.Type, "%d outputs, want %d", len(cfg.Outputs), out)
	}
	return nil
}

func checkAmplitude(t Type, a float64) error {
	if !(a > 0 && a <= 1) {
		return configErr(t, "amplitude %v outside (0, 1]", a)
	}
	return nil
}

// CheckConfig validates arity and per-type parameters. It does not look at
// hardware or buffer indices; the pipeline builder checks those.
func CheckConfig(cfg *Config) error {
	if cfg.Period <= 0 || cfg.Period > MaxPeriod {
		return configErr(cfg.Type, "period %d outside [1, %d]", cfg.Period, MaxPeriod)
	}
	if cfg.SampleRate <= 0 {
		return configErr(cfg.Type, "sample rate %d must be > 0", cfg.SampleRate)
	}
	if len(cfg.Inputs) > MaxIO || len(cfg.Outputs) > MaxIO {
		return configErr(cfg.Type, "too many buffers (%d in, %d out)", len(cfg.Inputs), len(cfg.Outputs))
	}

	switch cfg.Type {
	case TypeDTMF:
		if err := arity(cfg, 0, 1); err != nil {
			return err
		}
		return checkDTMF(cfg.DTMF)

	case TypeSine:
		if err := arity(cfg, 0, 1); err != nil {
			return err
		}
		c := cfg.Sine
		if c == nil {
			return configErr(TypeSine, "missing parameters")
		}
		if err := checkAmplitude(TypeSine, c.Amplitude); err != nil {
			return err
		}
		if !(c.Freq > 0 && c.Freq < float64(cfg.SampleRate)/2) {
			return configErr(TypeSine, "frequency %v Hz outside (0, %d)", c.Freq, cfg.SampleRate/2)
		}
		return nil

	case TypeRouting:
		if len(cfg.Inputs) == 0 || len(cfg.Outputs) == 0 {
			return configErr(TypeRouting, "needs at least one input and one output")
		}
		if cfg.Routing != nil && cfg.Routing.Routes != nil {
			if len(cfg.Routing.Routes) != len(cfg.Outputs) {
				return configErr(TypeRouting, "%d routes for %d outputs", len(cfg.Routing.Routes), len(cfg.Outputs))
			}
			for o, in := range cfg.Routing.Routes {
				if in < -1 || in >= len(cfg.Inputs) {
					return configErr(TypeRouting, "output %d routed to input %d of %d", o, in, len(cfg.Inputs))
				}
			}
		}
		return nil

	case TypeSAISink:
		if cfg.SAI == nil {
			return configErr(cfg.Type, "missing parameters")
		}
		if err := arity(cfg, cfg.SAI.Channels(), 0); err != nil {
			return err
		}
		return checkSAI(cfg.Type, cfg.SAI)

	case TypeSAISource:
		if cfg.SAI == nil {
			return configErr(cfg.Type, "missing parameters")
		}
		if err := arity(cfg, 0, cfg.SAI.Channels()); err != nil {
			return err
		}
		return checkSAI(cfg.Type, cfg.SAI)

	case TypeAVTPSink, TypeAVTPSource:
		c := cfg.AVTP
		if c == nil {
			return configErr(cfg.Type, "missing parameters")
		}
		if c.Channels < 1 || c.Channels > MaxAVTPChannels {
			return configErr(cfg.Type, "%d channels outside [1, %d]", c.Channels, MaxAVTPChannels)
		}
		if cfg.Type == TypeAVTPSink {
			return arity(cfg, c.Channels, 0)
		}
		return arity(cfg, 0, c.Channels)

	case TypePLL:
		if err := arity(cfg, 0, 0); err != nil {
			return err
		}
		if cfg.PLL == nil {
			return configErr(TypePLL, "missing parameters")
		}
		if err := cfg.PLL.Check(); err != nil {
			return configErr(TypePLL, "%v", err)
		}
		return nil
	}
	return configErr(cfg.Type, "unknown element type")
}

func checkDTMF(c *DTMFConfig) error {
	if c == nil {
		return configErr(TypeDTMF, "missing parameters")
	}
	if err := checkAmplitude(TypeDTMF, c.Amplitude); err != nil {
		return err
	}
	if len(c.Sequence) == 0 {
		return configErr(TypeDTMF, "empty sequence")
	}
	for i := 0; i < len(c.Sequence); i++ {
		if _, _, ok := DTMFFrequencies(c.Sequence[i]); !ok {
			return configErr(TypeDTMF, "invalid key %q at %d", c.Sequence[i], i)
		}
	}
	if c.ToneUs <= 0 {
		return configErr(TypeDTMF, "tone duration %d us must be > 0", c.ToneUs)
	}
	if c.PauseUs < 0 || c.SequencePauseUs < 0 {
		return configErr(TypeDTMF, "negative pause duration")
	}
	return nil
}

func checkSAI(t Type, c *SAIConfig) error {
	if len(c.Lines) == 0 {
		return configErr(t, "no lines")
	}
	type lineKey struct{ instance, line int }
	seen := make(map[lineKey]bool)
	for _, l := range c.Lines {
		if l.Instance < 0 || l.Instance >= hardware.MaxSAIInstances {
			return configErr(t, "sai instance %d out of range", l.Instance)
		}
		if l.Line < 0 || l.Line >= hardware.MaxSAILines {
			return configErr(t, "sai%d line %d out of range", l.Instance, l.Line)
		}
		k := lineKey{l.Instance, l.Line}
		if seen[k] {
			return configErr(t, "sai%d line %d listed twice", l.Instance, l.Line)
		}
		seen[k] = true
		if l.Slots < 1 || l.Slots > hardware.MaxSAIChannels {
			return configErr(t, "sai%d line %d: %d slots out of range", l.Instance, l.Line, l.Slots)
		}
		if len(l.Channels) == 0 || len(l.Channels) > l.Slots {
			return configErr(t, "sai%d line %d: %d channels for %d slots", l.Instance, l.Line, len(l.Channels), l.Slots)
		}
		used := make(map[int]bool)
		for _, ch := range l.Channels {
			if ch.Slot < 0 || ch.Slot >= l.Slots {
				return configErr(t, "sai%d line %d: slot %d out of range", l.Instance, l.Line, ch.Slot)
			}
			if used[ch.Slot] {
				return configErr(t, "sai%d line %d: slot %d used twice", l.Instance, l.Line, ch.Slot)
			}
			used[ch.Slot] = true
			if ch.Format.Shift > 31 {
				return configErr(t, "sai%d line %d: shift %d", l.Instance, l.Line, ch.Format.Shift)
			}
		}
	}
	return nil
}

// usToSamples converts a duration to a sample count at rate.
func usToSamples(us, rate int) int {
	return int(int64(us) * int64(rate) / 1000000)
}
