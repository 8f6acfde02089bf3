// ABOUTME: Tests for the capture loop
// ABOUTME: Uses scripted sources to cover publishing, backpressure, stop and device errors
package capture

import (
	"context"
	"errors"
	"io"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/vumeter/internal/levelchan"
	"github.com/Resonate-Protocol/vumeter/pkg/audio"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/input"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/level"
)

// scriptedSource returns blocks produced by fill until limit reads, then err
type scriptedSource struct {
	channels int
	limit    int
	reads    int
	fill     func(read int, block []int16) int
	err      error
	closed   atomic.Bool
}

func (s *scriptedSource) Read(block []int16) (int, error) {
	if s.limit >= 0 && s.reads >= s.limit {
		return 0, s.err
	}
	s.reads++
	if s.fill == nil {
		return len(block), nil
	}
	return s.fill(s.reads, block), nil
}

func (s *scriptedSource) Format() audio.Format {
	return audio.Format{SampleRate: 48000, Channels: s.channels, Sample: audio.FormatS16LE}
}
func (s *scriptedSource) Name() string { return "scripted" }
func (s *scriptedSource) Close() error {
	s.closed.Store(true)
	return nil
}

func quietLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func TestNewValidates(t *testing.T) {
	src := &scriptedSource{channels: 2}
	producers, _ := levelchan.NewSet(1, 4)
	_, err := New(src, producers, 8192, quietLogger())
	assert.Error(t, err, "channel count mismatch")

	producers, _ = levelchan.NewSet(2, 4)
	_, err = New(src, producers, 8191, quietLogger())
	assert.ErrorIs(t, err, level.ErrChannelMismatch)
}

func TestPublishesLevelsPerChannel(t *testing.T) {
	src := &scriptedSource{
		channels: 2,
		limit:    1,
		err:      io.EOF,
		fill: func(_ int, block []int16) int {
			for i := 0; i < len(block); i += 2 {
				block[i] = math.MaxInt16
				block[i+1] = 0
			}
			return len(block)
		},
	}
	producers, consumers := levelchan.NewSet(2, 4)
	loop, err := New(src, producers, 8192, quietLogger())
	require.NoError(t, err)

	require.NoError(t, loop.Run(context.Background()))
	assert.True(t, src.closed.Load(), "loop closes the source it owns")

	left, ok := consumers[0].Pop()
	require.True(t, ok)
	assert.InDelta(t, 0.0, left, 1e-4)

	right, ok := consumers[1].Pop()
	require.True(t, ok)
	assert.Equal(t, level.Silence, right)
}

func TestFullChannelDropsNewestWithoutError(t *testing.T) {
	// Block i carries a constant amplitude of i so every level is distinct
	src := &scriptedSource{
		channels: 1,
		limit:    100,
		err:      io.EOF,
		fill: func(read int, block []int16) int {
			for i := range block {
				block[i] = int16(read * 100)
			}
			return len(block)
		},
	}
	producers, consumers := levelchan.NewSet(1, 10)
	loop, err := New(src, producers, 1024, quietLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("capture loop blocked on a full level channel")
	}

	stats := loop.Stats()
	assert.Equal(t, uint64(100), stats.Blocks)
	assert.Equal(t, uint64(10), stats.Pushed)
	assert.Equal(t, uint64(90), stats.Dropped)

	for read := 1; read <= 10; read++ {
		v, ok := consumers[0].Pop()
		require.True(t, ok)
		assert.InDelta(t, level.FromRMS(float64(read*100)), v, 1e-6, "value %d", read)
	}
	_, ok := consumers[0].Pop()
	assert.False(t, ok)
}

func TestReadErrorIsDeviceError(t *testing.T) {
	unplugged := errors.New("device unplugged")
	src := &scriptedSource{channels: 2, limit: 3, err: unplugged}
	producers, _ := levelchan.NewSet(2, 10)
	loop, err := New(src, producers, 64, quietLogger())
	require.NoError(t, err)

	err = loop.Run(context.Background())
	var derr *input.DeviceError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, "read", derr.Op)
	assert.ErrorIs(t, err, unplugged)
	assert.True(t, src.closed.Load())
	assert.Equal(t, uint64(3), loop.Stats().Blocks)
}

func TestDeviceErrorPassesThrough(t *testing.T) {
	inner := &input.DeviceError{Op: "decode", Err: errors.New("corrupt frame")}
	src := &scriptedSource{channels: 1, limit: 0, err: inner}
	producers, _ := levelchan.NewSet(1, 1)
	loop, err := New(src, producers, 16, quietLogger())
	require.NoError(t, err)

	err = loop.Run(context.Background())
	assert.Same(t, inner, err)
}

func TestShortReadIsDeviceError(t *testing.T) {
	src := &scriptedSource{
		channels: 2,
		limit:    -1,
		fill:     func(_ int, block []int16) int { return len(block) - 2 },
	}
	producers, _ := levelchan.NewSet(2, 10)
	loop, err := New(src, producers, 64, quietLogger())
	require.NoError(t, err)

	err = loop.Run(context.Background())
	assert.ErrorIs(t, err, input.ErrShortRead)
	var derr *input.DeviceError
	assert.True(t, errors.As(err, &derr))
}

func TestStopEndsLoop(t *testing.T) {
	src := &scriptedSource{channels: 2, limit: -1}
	producers, consumers := levelchan.NewSet(2, 10)
	loop, err := New(src, producers, 64, quietLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	require.Eventually(t, func() bool { return loop.Stats().Blocks > 0 }, time.Second, time.Millisecond)
	loop.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not observe the stop flag")
	}
	assert.True(t, src.closed.Load())
	_, ok := consumers[0].Pop()
	assert.True(t, ok)
}

func TestContextCancelEndsLoop(t *testing.T) {
	src := &scriptedSource{channels: 1, limit: -1}
	producers, _ := levelchan.NewSet(1, 10)
	loop, err := New(src, producers, 64, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, loop.Run(ctx))
	assert.Equal(t, uint64(0), loop.Stats().Blocks)
}
