// ABOUTME: Tests for the loudness reducer and bar scaling
// ABOUTME: Covers silence, full scale, determinism, channel validation and mapping
package level

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alternatingFullScale(n int, channels int) []int16 {
	block := make([]int16, n)
	for i := range block {
		if (i/channels)%2 == 0 {
			block[i] = math.MaxInt16
		} else {
			block[i] = math.MinInt16
		}
	}
	return block
}

func TestReduceSilence(t *testing.T) {
	levels, err := Reduce(make([]int16, 8192), 2)
	require.NoError(t, err)
	require.Len(t, levels, 2)

	for ch, db := range levels {
		assert.Equal(t, Silence, db, "channel %d", ch)
		assert.False(t, math.IsNaN(float64(db)))
		assert.False(t, math.IsInf(float64(db), 0))
	}
}

func TestReduceFullScale(t *testing.T) {
	// 2 channels, 8192 interleaved samples, +32767/-32768 alternating per frame
	levels, err := Reduce(alternatingFullScale(8192, 2), 2)
	require.NoError(t, err)

	for ch, db := range levels {
		assert.InDelta(t, 0.0, db, 0.01, "channel %d", ch)
	}
}

func TestReduceConstantFullScale(t *testing.T) {
	block := make([]int16, 1024)
	for i := range block {
		block[i] = math.MaxInt16
	}
	levels, err := Reduce(block, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, levels[0], 1e-6)
}

func TestReduceSine(t *testing.T) {
	// A full-scale sine has an RMS 3.01 dB below its peak
	const frames = 48000
	block := make([]int16, frames)
	for i := range block {
		block[i] = int16(math.Round(math.MaxInt16 * math.Sin(2*math.Pi*1000*float64(i)/48000)))
	}
	levels, err := Reduce(block, 1)
	require.NoError(t, err)
	assert.InDelta(t, -3.01, levels[0], 0.01)
}

func TestReduceIndependentChannels(t *testing.T) {
	block := make([]int16, 4096)
	for i := 0; i < len(block); i += 2 {
		block[i] = 16384 // left at half scale, right silent
	}
	levels, err := Reduce(block, 2)
	require.NoError(t, err)

	assert.InDelta(t, -6.02, levels[0], 0.01)
	assert.Equal(t, Silence, levels[1])
}

func TestReduceDeterministic(t *testing.T) {
	block := make([]int16, 2048)
	for i := range block {
		block[i] = int16((i*7919)%65536 - 32768)
	}

	first, err := Reduce(block, 2)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Reduce(block, 2)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestReduceChannelMismatch(t *testing.T) {
	tests := []struct {
		name     string
		samples  int
		channels int
	}{
		{"odd stereo block", 8191, 2},
		{"not divisible by three", 10, 3},
		{"zero channels", 8, 0},
		{"negative channels", 8, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels, err := Reduce(make([]int16, tt.samples), tt.channels)
			assert.Nil(t, levels)
			assert.True(t, errors.Is(err, ErrChannelMismatch), "got %v", err)
		})
	}
}

func TestReduceEmptyBlock(t *testing.T) {
	levels, err := Reduce(nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{Silence, Silence}, levels)
}

func TestReduceIntoShortDestination(t *testing.T) {
	err := ReduceInto(make([]float32, 1), make([]int16, 4), 2)
	assert.Error(t, err)
}

func TestFromRMS(t *testing.T) {
	assert.Equal(t, Silence, FromRMS(0))
	assert.Equal(t, Silence, FromRMS(math.NaN()))
	assert.InDelta(t, 0.0, FromRMS(math.MaxInt16), 1e-6)
	assert.InDelta(t, -20.0, FromRMS(math.MaxInt16/10.0), 1e-4)
}

func TestAmplitude(t *testing.T) {
	assert.InDelta(t, math.MaxInt16, Amplitude(0), 1e-9)
	assert.InDelta(t, math.MaxInt16/2.0, Amplitude(-6.0206), 0.01)
}

func TestScalePercent(t *testing.T) {
	s := Scale{FloorDB: -60}

	assert.Equal(t, 0.0, s.Percent(Silence))
	assert.Equal(t, 0.0, s.Percent(-60))
	assert.Equal(t, 0.0, s.Percent(-120))
	assert.InDelta(t, 50.0, s.Percent(-30), 1e-9)
	assert.Equal(t, 100.0, s.Percent(0))
	assert.Equal(t, 100.0, s.Percent(3))
}

func TestScaleMonotonic(t *testing.T) {
	s := Scale{FloorDB: -48}
	prev := -1.0
	for db := float32(-80); db <= 6; db += 0.25 {
		p := s.Percent(db)
		assert.GreaterOrEqual(t, p, prev, "at %v dB", db)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 100.0)
		prev = p
	}
}

func TestScaleInvalidFloorFallsBack(t *testing.T) {
	s := Scale{}
	assert.InDelta(t, 50.0, s.Percent(DefaultFloorDB/2), 1e-9)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "  -inf dB", Format(Silence))
	assert.Equal(t, " -12.5 dB", Format(-12.5))
}
