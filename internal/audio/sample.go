package audio

import (
	"math"
	"math/bits"
)

// Sample is one 32-bit audio word holding left-justified signed PCM.
type Sample = uint32

const fullScale = float64(math.MaxInt32)

// SampleFromFloat converts v in [-1, 1] to a Sample, saturating outside it.
func SampleFromFloat(v float64) Sample {
	if v >= 1 {
		return Sample(int32(math.MaxInt32))
	}
	if v <= -1 {
		return Sample(uint32(1) << 31)
	}
	return Sample(int32(math.Round(v * fullScale)))
}

// SampleToFloat is the inverse of SampleFromFloat.
func SampleToFloat(s Sample) float64 {
	return float64(int32(s)) / fullScale
}

// Format describes how a sample is packed into a hardware FIFO word.
// A zero Format passes samples through unchanged.
type Format struct {
	Shift      uint8  // right shift applied on the way out
	Mask       uint32 // 0 means all bits
	SignInvert bool   // flip the most significant bit of Mask
}

func (f Format) mask() uint32 {
	if f.Mask == 0 {
		return 0xffffffff
	}
	return f.Mask
}

func (f Format) signBit() uint32 {
	m := f.mask()
	return uint32(1) << (31 - bits.LeadingZeros32(m))
}

// ToWord packs s into a FIFO word.
func (f Format) ToWord(s Sample) uint32 {
	w := (s >> f.Shift) & f.mask()
	if f.SignInvert {
		w ^= f.signBit()
	}
	return w
}

// FromWord unpacks a FIFO word into a sample.
func (f Format) FromWord(w uint32) Sample {
	w &= f.mask()
	if f.SignInvert {
		w ^= f.signBit()
	}
	return w << f.Shift
}

// copySamples copies src into dst, which must be at least as long. Short
// copies of the common channel counts are unrolled.
func copySamples(dst, src []Sample) {
	switch len(src) {
	case 1:
		dst[0] = src[0]
	case 2:
		dst[0], dst[1] = src[0], src[1]
	case 4:
		dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], src[3]
	case 8:
		_ = dst[7]
		dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], src[3]
		dst[4], dst[5], dst[6], dst[7] = src[4], src[5], src[6], src[7]
	default:
		copy(dst, src)
	}
}
