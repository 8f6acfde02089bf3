// ABOUTME: Test tone capture source
// ABOUTME: Generates a sine wave at a fixed level on every channel
package input

import (
	"math"

	"github.com/Resonate-Protocol/vumeter/pkg/audio"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/level"
)

const (
	// DefaultToneHz is A4
	DefaultToneHz = 440.0
	// DefaultToneDBFS is the default peak level of the tone
	DefaultToneDBFS = -12.0
)

func init() {
	Register("tone", func(cfg Config) (Source, error) { return NewToneSource(cfg), nil }, nil)
}

// ToneSource generates a sine wave test tone
type ToneSource struct {
	format      audio.Format
	frequency   float64
	amplitude   float64
	sampleIndex uint64
	pace        *pacer
}

// NewToneSource creates a tone generator for the configured format
func NewToneSource(cfg Config) *ToneSource {
	freq := cfg.ToneHz
	if freq <= 0 {
		freq = DefaultToneHz
	}
	dbfs := cfg.ToneDBFS
	if dbfs > 0 {
		dbfs = 0
	}

	s := &ToneSource{
		format:    cfg.format(),
		frequency: freq,
		amplitude: level.Amplitude(dbfs),
	}
	if cfg.Pace {
		s.pace = newPacer(s.format.BlockDuration(cfg.BlockSize))
	}
	return s
}

func (s *ToneSource) Read(block []int16) (int, error) {
	if s.pace != nil {
		if err := s.pace.wait(); err != nil {
			return 0, err
		}
	}

	channels := s.format.Channels
	frames := len(block) / channels
	for i := 0; i < frames; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.format.SampleRate)
		v := int16(math.Round(s.amplitude * math.Sin(2*math.Pi*s.frequency*t)))
		for ch := 0; ch < channels; ch++ {
			block[i*channels+ch] = v
		}
	}
	s.sampleIndex += uint64(frames)

	return frames * channels, nil
}

func (s *ToneSource) Format() audio.Format { return s.format }
func (s *ToneSource) Name() string {
	return "tone"
}

func (s *ToneSource) Close() error {
	if s.pace != nil {
		s.pace.close()
	}
	return nil
}
