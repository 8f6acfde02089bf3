// ABOUTME: Audio type definitions
// ABOUTME: Defines capture formats, interleaved blocks and sample conversions
package audio

import (
	"fmt"
	"math"
	"time"
)

const (
	// MaxInt16 is the largest positive 16-bit sample, the 0 dBFS reference
	MaxInt16 = math.MaxInt16
	// MinInt16 is the most negative 16-bit sample
	MinInt16 = math.MinInt16
)

// SampleFormat identifies the on-wire sample encoding of a capture stream
type SampleFormat int

const (
	// FormatS16LE is signed 16-bit little-endian, the only capture format the meter uses
	FormatS16LE SampleFormat = iota
)

// String returns the conventional short name of the format
func (f SampleFormat) String() string {
	switch f {
	case FormatS16LE:
		return "S16_LE"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

// BitDepth returns the sample width in bits
func (f SampleFormat) BitDepth() int {
	switch f {
	case FormatS16LE:
		return 16
	default:
		return 0
	}
}

// Format describes a capture stream
type Format struct {
	SampleRate int
	Channels   int
	Sample     SampleFormat
}

// String renders the format as "48000Hz 2ch S16_LE"
func (f Format) String() string {
	return fmt.Sprintf("%dHz %dch %s", f.SampleRate, f.Channels, f.Sample)
}

// Block is one fixed-size batch of interleaved 16-bit samples
type Block []int16

// Frames returns the number of whole frames in the block for the given channel count.
// It returns false when the block length is not a multiple of channels.
func (b Block) Frames(channels int) (int, bool) {
	if channels < 1 || len(b)%channels != 0 {
		return 0, false
	}
	return len(b) / channels, true
}

// BlockDuration returns how long a block of blockSize interleaved samples lasts
func (f Format) BlockDuration(blockSize int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := int64(blockSize / f.Channels)
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// SampleToInt16 converts a 24-bit sample held in an int32 to 16-bit
func SampleToInt16(sample int32) int16 {
	return int16(sample >> 8)
}

// SampleFromInt16 converts a 16-bit sample to the 24-bit range
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// ScaleToInt16 converts a signed sample of arbitrary bit depth to 16-bit
func ScaleToInt16(sample int32, bitDepth int) int16 {
	switch {
	case bitDepth == 16:
		return int16(sample)
	case bitDepth > 16:
		return int16(sample >> (bitDepth - 16))
	case bitDepth > 0:
		return int16(sample << (16 - bitDepth))
	default:
		return 0
	}
}

// DecodeS16LE fills dst with little-endian 16-bit samples from src and returns the
// number of samples written
func DecodeS16LE(dst []int16, src []byte) int {
	n := len(src) / 2
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(uint16(src[i*2]) | uint16(src[i*2+1])<<8)
	}
	return n
}

// EncodeS16LE writes samples as little-endian bytes into dst, which must hold 2*len(samples)
func EncodeS16LE(dst []byte, samples []int16) {
	for i, s := range samples {
		dst[i*2] = byte(s)
		dst[i*2+1] = byte(s >> 8)
	}
}
