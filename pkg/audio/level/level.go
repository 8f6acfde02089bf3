// ABOUTME: Loudness reduction from interleaved PCM blocks to per-channel dBFS
// ABOUTME: Pure RMS computation plus the dBFS to bar percentage mapping
package level

import (
	"errors"
	"fmt"
	"math"

	"github.com/Resonate-Protocol/vumeter/pkg/audio"
)

// Silence is the level reported for a channel with no energy. It is the most
// negative finite float32 so it orders below every real measurement.
const Silence float32 = -math.MaxFloat32

// ErrChannelMismatch is returned when a block cannot be split evenly into channels
var ErrChannelMismatch = errors.New("block length is not a multiple of the channel count")

// Reduce returns the RMS level of every channel in an interleaved block, in dBFS.
// 0 dBFS is a full-scale 16-bit signal; an empty or all-zero channel yields Silence.
func Reduce(block []int16, channels int) ([]float32, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d channels", ErrChannelMismatch, channels)
	}
	levels := make([]float32, channels)
	if err := ReduceInto(levels, block, channels); err != nil {
		return nil, err
	}
	return levels, nil
}

// ReduceInto is Reduce without allocation; dst must hold at least channels values
func ReduceInto(dst []float32, block []int16, channels int) error {
	frames, ok := audio.Block(block).Frames(channels)
	if !ok {
		return fmt.Errorf("%w: %d samples, %d channels", ErrChannelMismatch, len(block), channels)
	}
	if len(dst) < channels {
		return fmt.Errorf("level buffer holds %d values, need %d", len(dst), channels)
	}

	if frames == 0 {
		for ch := 0; ch < channels; ch++ {
			dst[ch] = Silence
		}
		return nil
	}

	for ch := 0; ch < channels; ch++ {
		var sum float64
		for i := ch; i < len(block); i += channels {
			s := float64(block[i])
			sum += s * s
		}
		dst[ch] = FromRMS(math.Sqrt(sum / float64(frames)))
	}
	return nil
}

// FromRMS converts an RMS amplitude in 16-bit sample units to dBFS
func FromRMS(rms float64) float32 {
	if rms <= 0 || math.IsNaN(rms) {
		return Silence
	}
	return float32(20 * math.Log10(rms/audio.MaxInt16))
}

// Amplitude returns the peak sample amplitude corresponding to a dBFS level
func Amplitude(dbfs float64) float64 {
	return audio.MaxInt16 * math.Pow(10, dbfs/20)
}

// Scale maps dBFS onto a bar range of 0..100. Levels at or below FloorDB map to 0,
// levels at or above 0 dBFS map to 100, and the mapping is linear in between.
type Scale struct {
	FloorDB float32
}

// DefaultFloorDB is the quietest level that still moves a bar
const DefaultFloorDB = -60

// Percent returns the bar value for a level
func (s Scale) Percent(db float32) float64 {
	floor := s.FloorDB
	if floor >= 0 {
		floor = DefaultFloorDB
	}
	switch {
	case db <= floor:
		return 0
	case db >= 0:
		return 100
	}
	return 100 * float64(db-floor) / float64(-floor)
}

// Format renders a level for display, showing silence as "-inf"
func Format(db float32) string {
	if db <= Silence {
		return "  -inf dB"
	}
	return fmt.Sprintf("%6.1f dB", db)
}
