// ABOUTME: Malgo-based capture source
// ABOUTME: Uses miniaudio via malgo, turning its data callback into blocking block reads
package input

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/vumeter/pkg/audio"
)

// StallTimeout is how long Read waits for data before reporting the device as stalled
const StallTimeout = 2 * time.Second

var (
	// ErrDeviceStopped is reported when the device stops delivering, e.g. on unplug
	ErrDeviceStopped = errors.New("capture device stopped")
	// ErrStalled is reported when no audio arrives within StallTimeout
	ErrStalled = errors.New("no audio from capture device")
)

func init() {
	Register("malgo", func(cfg Config) (Source, error) { return NewMalgoSource(cfg) }, listMalgo)
}

// MalgoSource captures from a miniaudio device
type MalgoSource struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	format   audio.Format
	name     string
	log      *logrus.Entry

	ring     *RingBuffer
	cbBuf    []int16
	notify   chan struct{}
	overruns atomic.Uint64

	stopOnce  sync.Once
	stopped   chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

// NewMalgoSource opens and starts a capture device
func NewMalgoSource(cfg Config) (*MalgoSource, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	s := &MalgoSource{
		malgoCtx: ctx,
		format:   cfg.format(),
		name:     cfg.Device,
		log:      logrus.WithField("backend", "malgo"),
		notify:   make(chan struct{}, 1),
		stopped:  make(chan struct{}),
		closed:   make(chan struct{}),
	}

	// 500ms of audio, never less than two blocks
	capacity := cfg.SampleRate * cfg.Channels / 2
	if capacity < 2*cfg.BlockSize {
		capacity = 2 * cfg.BlockSize
	}
	s.ring = NewRingBuffer(capacity, cfg.Channels)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if cfg.Device != DefaultDevice {
		info, err := findMalgoDevice(ctx, cfg.Device)
		if err != nil {
			s.freeContext()
			return nil, err
		}
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			s.dataCallback(pInput, frameCount)
		},
		Stop: func() {
			s.stopOnce.Do(func() { close(s.stopped) })
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		s.freeContext()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		s.freeContext()
		return nil, fmt.Errorf("failed to start device: %w", err)
	}
	s.device = device

	s.log.Infof("Capture initialized: %s on %q", s.format, s.name)
	return s, nil
}

// dataCallback runs on the audio thread and must never block
func (s *MalgoSource) dataCallback(pInput []byte, frameCount uint32) {
	n := int(frameCount) * s.format.Channels
	if cap(s.cbBuf) < n {
		s.cbBuf = make([]int16, n)
	}
	samples := s.cbBuf[:audio.DecodeS16LE(s.cbBuf[:n], pInput)]

	if written := s.ring.Write(samples); written < len(samples) {
		s.overruns.Add(1)
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *MalgoSource) Read(block []int16) (int, error) {
	timer := time.NewTimer(StallTimeout)
	defer timer.Stop()

	for {
		if s.ring.ReadFull(block) {
			return len(block), nil
		}

		select {
		case <-s.notify:
		case <-s.stopped:
			// Drain whatever the device delivered before it stopped
			if s.ring.ReadFull(block) {
				return len(block), nil
			}
			return 0, ErrDeviceStopped
		case <-s.closed:
			return 0, ErrClosed
		case <-timer.C:
			return 0, ErrStalled
		}
	}
}

// Overruns returns how many device callbacks found the ring full
func (s *MalgoSource) Overruns() uint64 { return s.overruns.Load() }

func (s *MalgoSource) Format() audio.Format { return s.format }
func (s *MalgoSource) Name() string {
	return s.name
}

func (s *MalgoSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.device != nil {
			if err := s.device.Stop(); err != nil {
				s.log.Warnf("Device stop error: %v", err)
			}
			s.device.Uninit()
			s.device = nil
		}
		s.freeContext()
		if n := s.overruns.Load(); n > 0 {
			s.log.Warnf("Capture ring overflowed %d times", n)
		}
	})
	return nil
}

func (s *MalgoSource) freeContext() {
	if s.malgoCtx == nil {
		return
	}
	if err := s.malgoCtx.Uninit(); err != nil {
		s.log.Warnf("Malgo context uninit error: %v", err)
	}
	s.malgoCtx.Free()
	s.malgoCtx = nil
}

func findMalgoDevice(ctx *malgo.AllocatedContext, name string) (malgo.DeviceInfo, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceInfo{}, fmt.Errorf("failed to list capture devices: %w", err)
	}
	for _, info := range infos {
		if info.Name() == name {
			return info, nil
		}
	}
	return malgo.DeviceInfo{}, fmt.Errorf("capture device %q not found", name)
}

func listMalgo() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, DeviceInfo{
			Card:    0,
			Index:   i,
			Name:    info.Name(),
			Default: info.IsDefault != 0,
		})
	}
	return devices, nil
}
