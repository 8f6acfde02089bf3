// ABOUTME: Error types reported by capture sources
// ABOUTME: Distinguishes fatal startup configuration from fatal runtime device errors
package input

import (
	"errors"
	"fmt"
)

// ErrShortRead marks a read that returned fewer samples than a full block
var ErrShortRead = errors.New("short read")

// ErrClosed is returned by Read after Close
var ErrClosed = errors.New("source closed")

// ConfigError reports that a device could not be opened with the requested parameters
type ConfigError struct {
	Backend string
	Device  string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configure %s device %q: %v", e.Backend, e.Device, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DeviceError reports a read failure or disconnect during capture
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }
