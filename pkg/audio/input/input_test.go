// ABOUTME: Tests for the source registry and synthetic sources
// ABOUTME: Covers configuration errors, tone generation, pacing and the sample ring
package input

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/vumeter/pkg/audio"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/level"
)

func toneConfig() Config {
	return Config{
		Backend:    "tone",
		Channels:   2,
		SampleRate: 48000,
		BlockSize:  8192,
		Format:     audio.FormatS16LE,
		ToneHz:     1000,
		ToneDBFS:   -6,
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := toneConfig()
	cfg.Backend = "does-not-exist"

	src, err := Open(cfg)
	assert.Nil(t, src)

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "does-not-exist", cerr.Backend)
	assert.Equal(t, DefaultDevice, cerr.Device)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no channels", func(c *Config) { c.Channels = 0 }},
		{"no sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"block not multiple of channels", func(c *Config) { c.BlockSize = 8191 }},
		{"block smaller than a frame", func(c *Config) { c.BlockSize = 1 }},
		{"unknown sample format", func(c *Config) { c.Format = audio.SampleFormat(9) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := toneConfig()
			tt.mutate(&cfg)
			_, err := Open(cfg)
			var cerr *ConfigError
			assert.True(t, errors.As(err, &cerr), "got %v", err)
		})
	}
}

func TestOpenWrapsBackendFailure(t *testing.T) {
	boom := errors.New("device busy")
	Register("test-failing", func(Config) (Source, error) { return nil, boom }, nil)

	cfg := toneConfig()
	cfg.Backend = "test-failing"
	cfg.Device = "hw:1"
	_, err := Open(cfg)

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "hw:1", cerr.Device)
	assert.ErrorIs(t, err, boom)
}

func TestDevicesWithoutEnumeration(t *testing.T) {
	_, err := Devices("tone")
	assert.ErrorIs(t, err, ErrNoEnumeration)

	_, err = Devices("does-not-exist")
	assert.Error(t, err)
}

func TestBackendsIncludesBuiltins(t *testing.T) {
	names := Backends()
	assert.Contains(t, names, "tone")
	assert.Contains(t, names, "file")
	assert.Contains(t, names, "malgo")
	assert.IsIncreasing(t, names)
}

func TestToneSourceLevel(t *testing.T) {
	src, err := Open(toneConfig())
	require.NoError(t, err)
	defer src.Close()

	block := make([]int16, 8192)
	n, err := src.Read(block)
	require.NoError(t, err)
	assert.Equal(t, len(block), n)

	levels, err := level.Reduce(block, 2)
	require.NoError(t, err)
	// -6 dBFS peak sine has an RMS of about -9 dBFS
	for _, db := range levels {
		assert.InDelta(t, -9.03, db, 0.1)
	}
	assert.Equal(t, block[0], block[1], "both channels carry the same tone")
}

func TestToneSourceIsContinuous(t *testing.T) {
	a := NewToneSource(toneConfig())
	b := NewToneSource(toneConfig())

	first := make([]int16, 8)
	second := make([]int16, 8)
	_, _ = a.Read(first)
	_, _ = a.Read(second)

	whole := make([]int16, 16)
	_, _ = b.Read(whole)

	assert.Equal(t, whole, append(first, second...))
}

func TestToneSourcePacing(t *testing.T) {
	cfg := toneConfig()
	cfg.BlockSize = 960 // 10ms of stereo at 48kHz
	cfg.Pace = true
	src := NewToneSource(cfg)
	defer src.Close()

	block := make([]int16, cfg.BlockSize)
	start := time.Now()
	for i := 0; i < 5; i++ {
		_, err := src.Read(block)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
}

func TestPacerCloseInterruptsWait(t *testing.T) {
	p := newPacer(time.Hour)
	done := make(chan error, 1)
	go func() { done <- p.wait() }()

	time.Sleep(10 * time.Millisecond)
	p.close()
	p.close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after close")
	}
	assert.True(t, p.isClosed())
}

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(4, 1)
	assert.Equal(t, 3, rb.Write([]int16{1, 2, 3}))
	assert.Equal(t, 1, rb.Write([]int16{4, 5}), "overflowing samples are dropped")
	assert.Equal(t, 0, rb.Free())

	out := make([]int16, 5)
	assert.False(t, rb.ReadFull(out), "ReadFull never returns a partial block")
	assert.Equal(t, 4, rb.Available())

	out = out[:3]
	require.True(t, rb.ReadFull(out))
	assert.Equal(t, []int16{1, 2, 3}, out)

	rb.Write([]int16{6, 7})
	out = out[:3]
	require.True(t, rb.ReadFull(out))
	assert.Equal(t, []int16{4, 6, 7}, out)
}

func TestRingBufferKeepsWholeFrames(t *testing.T) {
	// 3 channels, 10 samples requested: rounded down to 3 frames
	rb := NewRingBuffer(10, 3)
	assert.Equal(t, 9, rb.Free())

	// two frames in, one frame of room left
	assert.Equal(t, 6, rb.Write([]int16{1, 2, 3, 1, 2, 3}))
	assert.Equal(t, 0, rb.Write([]int16{1, 2, 3, 1, 2, 3}[:2]), "partial frame is never stored")
	assert.Equal(t, 3, rb.Write([]int16{1, 2, 3, 1, 2, 3}), "only the frame that fits is stored")
	assert.Equal(t, 0, rb.Free())

	out := make([]int16, 3)
	require.True(t, rb.ReadFull(out))
	assert.Equal(t, []int16{1, 2, 3}, out)

	// after overflow, new audio stays aligned to channel 1
	assert.Equal(t, 3, rb.Write([]int16{1, 2, 3, 1}))
	out = make([]int16, 9)
	require.True(t, rb.ReadFull(out))
	assert.Equal(t, []int16{1, 2, 3, 1, 2, 3, 1, 2, 3}, out)
}

func TestRingBufferMinimumOneFrame(t *testing.T) {
	rb := NewRingBuffer(1, 2)
	assert.Equal(t, 2, rb.Free())
}

type fakeDecoder struct {
	samples  []int16
	pos      int
	nch      int
	rewinds  int
	closed   bool
	rewindOK bool
}

func (d *fakeDecoder) read(dst []int16) (int, error) {
	if d.pos >= len(d.samples) {
		return 0, io.EOF
	}
	n := copy(dst, d.samples[d.pos:])
	d.pos += n
	return n, nil
}

func (d *fakeDecoder) channels() int   { return d.nch }
func (d *fakeDecoder) sampleRate() int { return 48000 }
func (d *fakeDecoder) rewind() error {
	d.rewinds++
	d.pos = 0
	return nil
}
func (d *fakeDecoder) close() error {
	d.closed = true
	return nil
}

func TestFileSourceLoops(t *testing.T) {
	dec := &fakeDecoder{samples: []int16{1, 2, 3, 4, 5, 6}, nch: 2}
	s := &FileSource{dec: dec, format: audio.Format{SampleRate: 48000, Channels: 2}, loop: true}

	block := make([]int16, 8)
	n, err := s.Read(block)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, []int16{1, 2, 3, 4, 5, 6, 1, 2}, block)
	assert.Equal(t, 1, dec.rewinds)
}

func TestFileSourceEndsWithoutLoop(t *testing.T) {
	dec := &fakeDecoder{samples: []int16{1, 2, 3, 4, 5, 6}, nch: 2}
	s := &FileSource{dec: dec, format: audio.Format{SampleRate: 48000, Channels: 2}}

	block := make([]int16, 8)
	n, err := s.Read(block)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 6, n)

	n, err = s.Read(block)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, n)
}

func TestFileSourceEmptyLoopingFileEnds(t *testing.T) {
	dec := &fakeDecoder{nch: 2}
	s := &FileSource{dec: dec, format: audio.Format{SampleRate: 48000, Channels: 2}, loop: true}

	n, err := s.Read(make([]int16, 4))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, n)
}

func TestFileSourceUpmixesMono(t *testing.T) {
	dec := &fakeDecoder{samples: []int16{10, 20, 30}, nch: 1}
	s := &FileSource{dec: dec, format: audio.Format{SampleRate: 48000, Channels: 2}}

	block := make([]int16, 6)
	n, err := s.Read(block)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []int16{10, 10, 20, 20, 30, 30}, block)

	require.NoError(t, s.Close())
	assert.True(t, dec.closed)
}

func TestOpenFileErrors(t *testing.T) {
	cfg := toneConfig()
	cfg.Backend = "file"

	_, err := Open(cfg)
	var cerr *ConfigError
	assert.True(t, errors.As(err, &cerr), "missing path is a configuration error")

	cfg.File = "/nonexistent/recording.wav"
	_, err = Open(cfg)
	assert.ErrorContains(t, err, "unsupported audio format")

	cfg.File = "/nonexistent/recording.flac"
	_, err = Open(cfg)
	assert.True(t, errors.As(err, &cerr))
}

func TestErrorMessages(t *testing.T) {
	cerr := &ConfigError{Backend: "malgo", Device: "default", Err: errors.New("no device")}
	assert.Equal(t, `configure malgo device "default": no device`, cerr.Error())

	derr := &DeviceError{Op: "read", Err: ErrShortRead}
	assert.Equal(t, "device read: short read", derr.Error())
	assert.ErrorIs(t, derr, ErrShortRead)
}
