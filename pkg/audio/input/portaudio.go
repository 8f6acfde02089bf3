//go:build portaudio

// ABOUTME: PortAudio capture source
// ABOUTME: Cross-platform blocking capture using PortAudio
package input

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/vumeter/pkg/audio"
)

func init() {
	Register("portaudio", func(cfg Config) (Source, error) { return NewPortAudioSource(cfg) }, listPortAudio)
}

// PortAudioSource reads blocks with PortAudio's blocking stream API
type PortAudioSource struct {
	stream    *portaudio.Stream
	buffer    []int16
	format    audio.Format
	name      string
	overflows uint64
}

// NewPortAudioSource opens and starts an input stream delivering cfg.BlockSize samples per read
func NewPortAudioSource(cfg Config) (*PortAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	buffer := make([]int16, cfg.BlockSize)
	frames := cfg.BlockSize / cfg.Channels

	var (
		stream *portaudio.Stream
		err    error
	)
	if cfg.Device == DefaultDevice {
		stream, err = portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), frames, buffer)
	} else {
		var dev *portaudio.DeviceInfo
		dev, err = findPortAudioDevice(cfg.Device)
		if err == nil {
			params := portaudio.HighLatencyParameters(dev, nil)
			params.Input.Channels = cfg.Channels
			params.SampleRate = float64(cfg.SampleRate)
			params.FramesPerBuffer = frames
			stream, err = portaudio.OpenStream(params, buffer)
		}
	}
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}

	logrus.WithField("backend", "portaudio").Infof("Capture initialized: %s on %q", cfg.format(), cfg.Device)

	return &PortAudioSource{
		stream: stream,
		buffer: buffer,
		format: cfg.format(),
		name:   cfg.Device,
	}, nil
}

func (p *PortAudioSource) Read(block []int16) (int, error) {
	if len(block) != len(p.buffer) {
		return 0, fmt.Errorf("block of %d samples, stream delivers %d", len(block), len(p.buffer))
	}
	if err := p.stream.Read(); err != nil {
		// An overflow lost audio before this block; the block itself is complete
		if !errors.Is(err, portaudio.InputOverflowed) {
			return 0, err
		}
		p.overflows++
	}
	return copy(block, p.buffer), nil
}

// Overflows returns how many reads reported lost input
func (p *PortAudioSource) Overflows() uint64 { return p.overflows }

func (p *PortAudioSource) Format() audio.Format { return p.format }
func (p *PortAudioSource) Name() string {
	return p.name
}

func (p *PortAudioSource) Close() error {
	var err error
	if p.stream != nil {
		if stopErr := p.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := p.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		p.stream = nil
	}
	if termErr := portaudio.Terminate(); termErr != nil && err == nil {
		err = termErr
	}
	return err
}

func findPortAudioDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("capture device %q not found", name)
}

func listPortAudio() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	apis, err := portaudio.HostApis()
	if err != nil {
		return nil, err
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []DeviceInfo
	for _, dev := range devices {
		if dev.MaxInputChannels == 0 {
			continue
		}
		card := -1
		for i, api := range apis {
			if api == dev.HostApi {
				card = i
				break
			}
		}
		out = append(out, DeviceInfo{
			Card:    card,
			Index:   dev.Index,
			Name:    dev.Name,
			Default: def != nil && def.Index == dev.Index,
		})
	}
	return out, nil
}
