//go:build pulse

// ABOUTME: PulseAudio capture source
// ABOUTME: Blocking capture through the PulseAudio simple API
package input

import (
	"fmt"
	"os"

	pulse "github.com/mesilliac/pulse-simple"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/vumeter/pkg/audio"
)

func init() {
	Register("pulse", func(cfg Config) (Source, error) { return NewPulseSource(cfg) }, nil)
}

// PulseSource reads interleaved S16LE from a PulseAudio record stream
type PulseSource struct {
	stream *pulse.Stream
	buf    []byte
	format audio.Format
	name   string
}

// NewPulseSource opens a record stream. A non-default device is selected through
// PULSE_SOURCE, which the simple API honours.
func NewPulseSource(cfg Config) (*PulseSource, error) {
	if cfg.Device != DefaultDevice {
		if err := os.Setenv("PULSE_SOURCE", cfg.Device); err != nil {
			return nil, err
		}
	}

	ss := pulse.SampleSpec{
		Format:   pulse.SAMPLE_S16LE,
		Rate:     uint32(cfg.SampleRate),
		Channels: uint8(cfg.Channels),
	}
	stream, err := pulse.Capture("vumeter", "level meter", &ss)
	if err != nil {
		return nil, fmt.Errorf("failed to open record stream: %w", err)
	}

	logrus.WithField("backend", "pulse").Infof("Capture initialized: %s on %q", cfg.format(), cfg.Device)

	return &PulseSource{
		stream: stream,
		buf:    make([]byte, cfg.BlockSize*2),
		format: cfg.format(),
		name:   cfg.Device,
	}, nil
}

func (p *PulseSource) Read(block []int16) (int, error) {
	need := len(block) * 2
	if cap(p.buf) < need {
		p.buf = make([]byte, need)
	}
	n, err := p.stream.Read(p.buf[:need])
	if err != nil {
		return 0, err
	}
	return audio.DecodeS16LE(block, p.buf[:n]), nil
}

func (p *PulseSource) Format() audio.Format { return p.format }
func (p *PulseSource) Name() string {
	return p.name
}

func (p *PulseSource) Close() error {
	if p.stream != nil {
		p.stream.Free()
		p.stream = nil
	}
	return nil
}
