// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for playing 16-bit PCM through a playback device
package output

// Output represents an audio output device
type Output interface {
	// Open initializes the output device
	Open(sampleRate, channels int) error

	// Write plays interleaved 16-bit samples, blocking while the device buffer is full
	Write(samples []int16) error

	// Close releases output resources
	Close() error
}
