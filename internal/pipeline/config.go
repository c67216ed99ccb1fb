package pipeline

import (
	"errors"
	"fmt"

	"rtaudio-pipeline/internal/audio"
	"rtaudio-pipeline/internal/element"
)

var (
	ErrBufferConfig = errors.New("invalid buffer config")
	ErrSharedBuffer = errors.New("buffer has more than one writer or reader")
)

// BufferConfig describes one ring. The ring holds Count periods of Period
// samples; Silence samples are pre-filled on every reset.
type BufferConfig struct {
	Period  int
	Count   int
	Silence int

	// Storage, when set, is used as the ring's backing store and may be
	// shared with a previous configuration.
	Storage []audio.Sample
}

// MaxBufferSamples bounds Period*Count of a single buffer.
const MaxBufferSamples = 1 << 24

// Size returns the ring capacity the buffer needs.
func (c BufferConfig) Size() int {
	return audio.NextPowerOfTwo(c.Period*c.Count + 1)
}

// Config is the static description of a pipeline. Elements run in slice
// order every period. Element and buffer periods default to Period, and
// element sample rates to SampleRate.
type Config struct {
	ID         int
	Name       string
	Period     int
	SampleRate int
	QueueDepth int

	Buffers  []BufferConfig
	Elements []element.Config
}

const defaultQueueDepth = 16

func (c *Config) applyDefaults() {
	if c.QueueDepth <= 0 {
		c.QueueDepth = defaultQueueDepth
	}
	for i := range c.Buffers {
		if c.Buffers[i].Period == 0 {
			c.Buffers[i].Period = c.Period
		}
	}
	for i := range c.Elements {
		if c.Elements[i].Period == 0 {
			c.Elements[i].Period = c.Period
		}
		if c.Elements[i].SampleRate == 0 {
			c.Elements[i].SampleRate = c.SampleRate
		}
	}
}

func checkBuffer(i int, c BufferConfig) error {
	if c.Period <= 0 {
		return fmt.Errorf("%w: buffer %d: period %d", ErrBufferConfig, i, c.Period)
	}
	if c.Count < 1 {
		return fmt.Errorf("%w: buffer %d: count %d", ErrBufferConfig, i, c.Count)
	}
	if c.Period > MaxBufferSamples/c.Count {
		return fmt.Errorf("%w: buffer %d: %d periods of %d exceed %d samples", ErrBufferConfig, i, c.Count, c.Period, MaxBufferSamples)
	}
	if c.Silence < 0 || c.Silence > c.Period*c.Count {
		return fmt.Errorf("%w: buffer %d: silence %d", ErrBufferConfig, i, c.Silence)
	}
	if c.Storage != nil && len(c.Storage) < c.Size() {
		return fmt.Errorf("%w: buffer %d: storage holds %d samples, need %d", ErrBufferConfig, i, len(c.Storage), c.Size())
	}
	return nil
}

// checkWiring validates buffer indices and the single-writer single-reader
// rule across all elements.
func checkWiring(cfg *Config, a *audio.Arena) error {
	writer := make(map[int]int)
	reader := make(map[int]int)
	for i, ec := range cfg.Elements {
		for _, b := range ec.Inputs {
			if err := a.Check(b); err != nil {
				return fmt.Errorf("element %d input: %w", i, err)
			}
			if prev, ok := reader[b]; ok {
				return fmt.Errorf("%w: buffer %d read by elements %d and %d", ErrSharedBuffer, b, prev, i)
			}
			reader[b] = i
			if need := ec.Period + 1; a.Buffer(b).Size() < need {
				return fmt.Errorf("%w: buffer %d too small for element %d period %d", ErrBufferConfig, b, i, ec.Period)
			}
		}
		for _, b := range ec.Outputs {
			if err := a.Check(b); err != nil {
				return fmt.Errorf("element %d output: %w", i, err)
			}
			if prev, ok := writer[b]; ok {
				return fmt.Errorf("%w: buffer %d written by elements %d and %d", ErrSharedBuffer, b, prev, i)
			}
			writer[b] = i
			if need := ec.Period + 1; a.Buffer(b).Size() < need {
				return fmt.Errorf("%w: buffer %d too small for element %d period %d", ErrBufferConfig, b, i, ec.Period)
			}
		}
	}
	return nil
}
