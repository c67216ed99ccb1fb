package config

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Masterminds/semver/v3"

	"rtaudio-pipeline/internal/audio"
	"rtaudio-pipeline/internal/element"
	"rtaudio-pipeline/internal/pipeline"
	"rtaudio-pipeline/internal/pll"
)

// Binary pipeline description: a fixed header, one record per buffer, then
// one record per element. Element records are a fixed header, the buffer
// indices, and a parameter block whose layout depends on the type. All
// integers are little endian.

var Magic = [4]byte{'R', 'T', 'A', 'P'}

// FormatVersion is written by Encode. Decode accepts any version matching
// SupportedVersions.
var FormatVersion = semver.MustParse("1.0.0")

const SupportedVersions = "^1.0"

const maxName = 32

var (
	ErrBadMagic  = errors.New("config: bad magic")
	ErrVersion   = errors.New("config: unsupported format version")
	ErrTruncated = errors.New("config: truncated record")
	ErrEncode    = errors.New("config: value does not fit record")
)

var order = binary.LittleEndian

type header struct {
	Magic      [4]byte
	Major      uint16
	Minor      uint16
	Patch      uint16
	_          uint16
	ID         int32
	Period     uint32
	SampleRate uint32
	QueueDepth uint32
	NBuffers   uint16
	NElements  uint16
	Name       [maxName]byte
}

type bufferRecord struct {
	Period  uint32
	Count   uint32
	Silence uint32
}

type elementHeader struct {
	Type       uint8
	NIn        uint8
	NOut       uint8
	_          uint8
	Period     uint32
	SampleRate uint32
}

type dtmfRecord struct {
	Amplitude       float64
	ToneUs          uint32
	PauseUs         uint32
	SequencePauseUs uint32
	SeqLen          uint16
	_               uint16
}

type sineRecord struct {
	Freq      float64
	Amplitude float64
}

type saiLineRecord struct {
	Instance  uint8
	Line      uint8
	Slots     uint8
	NChannels uint8
}

type saiChannelRecord struct {
	Slot       uint8
	Shift      uint8
	SignInvert uint8
	_          uint8
	Mask       uint32
}

type avtpRecord struct {
	StreamID uint64
	Channels uint32
}

type pllRecord struct {
	Src         uint8
	Dst         uint8
	Enabled     uint8
	_           uint8
	Decimation  uint32
	StatsWindow uint32
}

func u8(v int, what string) (uint8, error) {
	if v < 0 || v > 0xff {
		return 0, fmt.Errorf("%w: %s %d", ErrEncode, what, v)
	}
	return uint8(v), nil
}

func u16(v int, what string) (uint16, error) {
	if v < 0 || v > 0xffff {
		return 0, fmt.Errorf("%w: %s %d", ErrEncode, what, v)
	}
	return uint16(v), nil
}

func u32(v int, what string) (uint32, error) {
	if v < 0 || int64(v) > 0xffffffff {
		return 0, fmt.Errorf("%w: %s %d", ErrEncode, what, v)
	}
	return uint32(v), nil
}

func b2u(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Encode serializes cfg. Buffer storage is not part of the format.
func Encode(cfg pipeline.Config) ([]byte, error) {
	var buf bytes.Buffer
	e := encoder{w: &buf}

	h := header{
		Magic: Magic,
		Major: uint16(FormatVersion.Major()),
		Minor: uint16(FormatVersion.Minor()),
		Patch: uint16(FormatVersion.Patch()),
		ID:    int32(cfg.ID),
	}
	if len(cfg.Name) > maxName {
		return nil, fmt.Errorf("%w: name longer than %d bytes", ErrEncode, maxName)
	}
	copy(h.Name[:], cfg.Name)
	h.Period = e.u32(cfg.Period, "period")
	h.SampleRate = e.u32(cfg.SampleRate, "sample rate")
	h.QueueDepth = e.u32(cfg.QueueDepth, "queue depth")
	h.NBuffers = e.u16(len(cfg.Buffers), "buffer count")
	h.NElements = e.u16(len(cfg.Elements), "element count")
	e.write(&h)

	for _, b := range cfg.Buffers {
		e.write(&bufferRecord{
			Period:  e.u32(b.Period, "buffer period"),
			Count:   e.u32(b.Count, "buffer count"),
			Silence: e.u32(b.Silence, "buffer silence"),
		})
	}
	for i := range cfg.Elements {
		e.element(&cfg.Elements[i])
	}
	if e.err != nil {
		return nil, e.err
	}
	return buf.Bytes(), nil
}

// encoder keeps the first error so record construction reads linearly.
type encoder struct {
	w   io.Writer
	err error
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) write(v any) {
	if e.err != nil {
		return
	}
	e.fail(binary.Write(e.w, order, v))
}

func (e *encoder) u8(v int, what string) uint8 {
	r, err := u8(v, what)
	if err != nil {
		e.fail(err)
	}
	return r
}

func (e *encoder) u16(v int, what string) uint16 {
	r, err := u16(v, what)
	if err != nil {
		e.fail(err)
	}
	return r
}

func (e *encoder) u32(v int, what string) uint32 {
	r, err := u32(v, what)
	if err != nil {
		e.fail(err)
	}
	return r
}

func (e *encoder) element(c *element.Config) {
	e.write(&elementHeader{
		Type:       e.u8(int(c.Type), "element type"),
		NIn:        e.u8(len(c.Inputs), "input count"),
		NOut:       e.u8(len(c.Outputs), "output count"),
		Period:     e.u32(c.Period, "element period"),
		SampleRate: e.u32(c.SampleRate, "element sample rate"),
	})
	idx := make([]uint16, 0, len(c.Inputs)+len(c.Outputs))
	for _, i := range c.Inputs {
		idx = append(idx, e.u16(i, "input index"))
	}
	for _, o := range c.Outputs {
		idx = append(idx, e.u16(o, "output index"))
	}
	e.write(idx)

	switch c.Type {
	case element.TypeDTMF:
		p := c.DTMF
		if p == nil {
			e.fail(fmt.Errorf("%w: dtmf without parameters", ErrEncode))
			return
		}
		e.write(&dtmfRecord{
			Amplitude:       p.Amplitude,
			ToneUs:          e.u32(p.ToneUs, "tone duration"),
			PauseUs:         e.u32(p.PauseUs, "pause duration"),
			SequencePauseUs: e.u32(p.SequencePauseUs, "sequence pause"),
			SeqLen:          e.u16(len(p.Sequence), "sequence length"),
		})
		e.write([]byte(p.Sequence))

	case element.TypeSine:
		if c.Sine == nil {
			e.fail(fmt.Errorf("%w: sine without parameters", ErrEncode))
			return
		}
		e.write(&sineRecord{Freq: c.Sine.Freq, Amplitude: c.Sine.Amplitude})

	case element.TypeRouting:
		if c.Routing == nil || c.Routing.Routes == nil {
			e.write(uint8(0))
			return
		}
		e.write(uint8(1))
		routes := make([]int16, len(c.Routing.Routes))
		for i, r := range c.Routing.Routes {
			if r < -1 || r > 0x7fff {
				e.fail(fmt.Errorf("%w: route %d", ErrEncode, r))
			}
			routes[i] = int16(r)
		}
		e.write(routes)

	case element.TypeSAISink, element.TypeSAISource:
		if c.SAI == nil {
			e.fail(fmt.Errorf("%w: sai without parameters", ErrEncode))
			return
		}
		e.write(e.u8(len(c.SAI.Lines), "line count"))
		for _, l := range c.SAI.Lines {
			e.write(&saiLineRecord{
				Instance:  e.u8(l.Instance, "sai instance"),
				Line:      e.u8(l.Line, "sai line"),
				Slots:     e.u8(l.Slots, "slot count"),
				NChannels: e.u8(len(l.Channels), "channel count"),
			})
			for _, ch := range l.Channels {
				e.write(&saiChannelRecord{
					Slot:       e.u8(ch.Slot, "slot"),
					Shift:      ch.Format.Shift,
					SignInvert: b2u(ch.Format.SignInvert),
					Mask:       ch.Format.Mask,
				})
			}
		}

	case element.TypeAVTPSink, element.TypeAVTPSource:
		if c.AVTP == nil {
			e.fail(fmt.Errorf("%w: avtp without parameters", ErrEncode))
			return
		}
		e.write(&avtpRecord{StreamID: c.AVTP.StreamID, Channels: e.u32(c.AVTP.Channels, "avtp channels")})

	case element.TypePLL:
		if c.PLL == nil {
			e.fail(fmt.Errorf("%w: pll without parameters", ErrEncode))
			return
		}
		e.write(&pllRecord{
			Src:         e.u8(c.PLL.Src, "pll src"),
			Dst:         e.u8(c.PLL.Dst, "pll dst"),
			Enabled:     b2u(c.PLL.Enabled),
			Decimation:  e.u32(c.PLL.Decimation, "pll decimation"),
			StatsWindow: e.u32(c.PLL.StatsWindow, "pll stats window"),
		})

	default:
		e.fail(fmt.Errorf("%w: element type %d", ErrEncode, c.Type))
	}
}

// CheckVersion reports whether a header version can be decoded.
func CheckVersion(major, minor, patch uint16) error {
	v, err := semver.NewVersion(fmt.Sprintf("%d.%d.%d", major, minor, patch))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVersion, err)
	}
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrVersion, v, SupportedVersions)
	}
	return nil
}

// Decode parses a binary pipeline description. It checks the layout only;
// pipeline.Build validates the contents.
func Decode(data []byte) (pipeline.Config, error) {
	r := bytes.NewReader(data)
	var cfg pipeline.Config

	var h header
	if err := read(r, &h); err != nil {
		return cfg, err
	}
	if h.Magic != Magic {
		return cfg, fmt.Errorf("%w: %q", ErrBadMagic, h.Magic[:])
	}
	if err := CheckVersion(h.Major, h.Minor, h.Patch); err != nil {
		return cfg, err
	}

	cfg.ID = int(h.ID)
	cfg.Name = string(bytes.TrimRight(h.Name[:], "\x00"))
	cfg.Period = int(h.Period)
	cfg.SampleRate = int(h.SampleRate)
	cfg.QueueDepth = int(h.QueueDepth)

	if h.NBuffers > 0 {
		cfg.Buffers = make([]pipeline.BufferConfig, h.NBuffers)
	}
	for i := range cfg.Buffers {
		var b bufferRecord
		if err := read(r, &b); err != nil {
			return cfg, fmt.Errorf("buffer %d: %w", i, err)
		}
		cfg.Buffers[i] = pipeline.BufferConfig{
			Period:  int(b.Period),
			Count:   int(b.Count),
			Silence: int(b.Silence),
		}
	}

	if h.NElements > 0 {
		cfg.Elements = make([]element.Config, h.NElements)
	}
	for i := range cfg.Elements {
		if err := decodeElement(r, &cfg.Elements[i]); err != nil {
			return cfg, fmt.Errorf("element %d: %w", i, err)
		}
	}

	if r.Len() != 0 {
		return cfg, fmt.Errorf("config: %d trailing bytes", r.Len())
	}
	return cfg, nil
}

func read(r io.Reader, v any) error {
	err := binary.Read(r, order, v)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}

func decodeElement(r *bytes.Reader, c *element.Config) error {
	var h elementHeader
	if err := read(r, &h); err != nil {
		return err
	}
	c.Type = element.Type(h.Type)
	c.Period = int(h.Period)
	c.SampleRate = int(h.SampleRate)

	idx := make([]uint16, int(h.NIn)+int(h.NOut))
	if err := read(r, idx); err != nil {
		return err
	}
	if h.NIn > 0 {
		c.Inputs = make([]int, h.NIn)
		for i := range c.Inputs {
			c.Inputs[i] = int(idx[i])
		}
	}
	if h.NOut > 0 {
		c.Outputs = make([]int, h.NOut)
		for i := range c.Outputs {
			c.Outputs[i] = int(idx[int(h.NIn)+i])
		}
	}

	switch c.Type {
	case element.TypeDTMF:
		var p dtmfRecord
		if err := read(r, &p); err != nil {
			return err
		}
		seq := make([]byte, p.SeqLen)
		if err := read(r, seq); err != nil {
			return err
		}
		c.DTMF = &element.DTMFConfig{
			Sequence:        string(seq),
			Amplitude:       p.Amplitude,
			ToneUs:          int(p.ToneUs),
			PauseUs:         int(p.PauseUs),
			SequencePauseUs: int(p.SequencePauseUs),
		}

	case element.TypeSine:
		var p sineRecord
		if err := read(r, &p); err != nil {
			return err
		}
		c.Sine = &element.SineConfig{Freq: p.Freq, Amplitude: p.Amplitude}

	case element.TypeRouting:
		var has uint8
		if err := read(r, &has); err != nil {
			return err
		}
		if has == 0 {
			break
		}
		routes := make([]int16, h.NOut)
		if err := read(r, routes); err != nil {
			return err
		}
		c.Routing = &element.RoutingConfig{Routes: make([]int, len(routes))}
		for i, v := range routes {
			c.Routing.Routes[i] = int(v)
		}

	case element.TypeSAISink, element.TypeSAISource:
		var n uint8
		if err := read(r, &n); err != nil {
			return err
		}
		c.SAI = &element.SAIConfig{Lines: make([]element.SAILine, n)}
		for i := range c.SAI.Lines {
			var l saiLineRecord
			if err := read(r, &l); err != nil {
				return err
			}
			line := element.SAILine{
				Instance: int(l.Instance),
				Line:     int(l.Line),
				Slots:    int(l.Slots),
				Channels: make([]element.SAIChannel, l.NChannels),
			}
			for j := range line.Channels {
				var ch saiChannelRecord
				if err := read(r, &ch); err != nil {
					return err
				}
				line.Channels[j] = element.SAIChannel{
					Slot: int(ch.Slot),
					Format: audio.Format{
						Shift:      ch.Shift,
						Mask:       ch.Mask,
						SignInvert: ch.SignInvert != 0,
					},
				}
			}
			c.SAI.Lines[i] = line
		}

	case element.TypeAVTPSink, element.TypeAVTPSource:
		var p avtpRecord
		if err := read(r, &p); err != nil {
			return err
		}
		c.AVTP = &element.AVTPConfig{StreamID: p.StreamID, Channels: int(p.Channels)}

	case element.TypePLL:
		var p pllRecord
		if err := read(r, &p); err != nil {
			return err
		}
		c.PLL = &pll.Config{
			Src:         int(p.Src),
			Dst:         int(p.Dst),
			Enabled:     p.Enabled != 0,
			Decimation:  int(p.Decimation),
			StatsWindow: int(p.StatsWindow),
		}

	default:
		return fmt.Errorf("config: unknown element type %d", h.Type)
	}
	return nil
}
