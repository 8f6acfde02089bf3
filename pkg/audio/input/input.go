// ABOUTME: Capture source interface definition and backend registry
// ABOUTME: Common contract for all sample sources feeding the capture loop
package input

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Resonate-Protocol/vumeter/pkg/audio"
)

// DefaultDevice selects the backend's default capture device
const DefaultDevice = "default"

// Source delivers fixed-size blocks of interleaved 16-bit samples
type Source interface {
	// Read blocks until block is filled and returns the number of samples written.
	// A return value smaller than len(block) means the device delivered a short read.
	Read(block []int16) (int, error)

	// Format returns the negotiated capture format
	Format() audio.Format

	// Name returns a human-readable device name for display
	Name() string

	// Close releases the device
	Close() error
}

// Config describes the capture a backend must open
type Config struct {
	Backend    string
	Device     string
	Channels   int
	SampleRate int
	BlockSize  int // interleaved samples per Read
	Format     audio.SampleFormat

	// File backend
	File string
	Loop bool

	// Tone backend
	ToneHz   float64
	ToneDBFS float64

	// Pace makes synthetic and file sources deliver blocks in real time.
	// Hardware backends are always paced by the device.
	Pace bool
}

// DeviceInfo describes one capture-capable device
type DeviceInfo struct {
	Card    int    // card or host API index
	Index   int    // device index within the card
	Name    string // name to pass as Config.Device
	Default bool
}

// Opener opens a source for a backend
type Opener func(cfg Config) (Source, error)

// Lister enumerates capture devices for a backend
type Lister func() ([]DeviceInfo, error)

type backend struct {
	open Opener
	list Lister
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]backend{}
)

// ErrNoEnumeration is returned by Devices for backends that only offer a default device
var ErrNoEnumeration = errors.New("backend does not enumerate devices")

// Register makes a backend available to Open. list may be nil.
func Register(name string, open Opener, list Lister) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = backend{open: open, list: list}
}

// Backends returns the registered backend names, sorted
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open validates cfg and opens the backend it names. Every failure is a *ConfigError.
func Open(cfg Config) (Source, error) {
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	if err := cfg.validate(); err != nil {
		return nil, &ConfigError{Backend: cfg.Backend, Device: cfg.Device, Err: err}
	}

	backendsMu.RLock()
	b, ok := backends[cfg.Backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, &ConfigError{
			Backend: cfg.Backend,
			Device:  cfg.Device,
			Err:     fmt.Errorf("unknown backend (available: %v)", Backends()),
		}
	}

	src, err := b.open(cfg)
	if err != nil {
		var cerr *ConfigError
		if errors.As(err, &cerr) {
			return nil, err
		}
		return nil, &ConfigError{Backend: cfg.Backend, Device: cfg.Device, Err: err}
	}
	return src, nil
}

// Devices lists the capture devices of a backend
func Devices(name string) ([]DeviceInfo, error) {
	backendsMu.RLock()
	b, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (available: %v)", name, Backends())
	}
	if b.list == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNoEnumeration)
	}
	return b.list()
}

func (cfg Config) validate() error {
	if cfg.Channels < 1 {
		return fmt.Errorf("invalid channel count %d", cfg.Channels)
	}
	if cfg.SampleRate < 1 {
		return fmt.Errorf("invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.BlockSize < cfg.Channels || cfg.BlockSize%cfg.Channels != 0 {
		return fmt.Errorf("block size %d is not a positive multiple of %d channels", cfg.BlockSize, cfg.Channels)
	}
	if cfg.Format != audio.FormatS16LE {
		return fmt.Errorf("unsupported sample format %s", cfg.Format)
	}
	return nil
}

func (cfg Config) format() audio.Format {
	return audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels, Sample: cfg.Format}
}
