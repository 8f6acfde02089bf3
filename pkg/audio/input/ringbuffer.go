// ABOUTME: Bounded sample ring used by callback-driven capture backends
// ABOUTME: The device callback writes without blocking and Read takes whole blocks
package input

import "sync"

// RingBuffer provides a thread-safe circular buffer for interleaved audio samples.
// It only ever holds whole frames so channel interleaving survives overflow.
type RingBuffer struct {
	buffer   []int16
	readPos  int
	writePos int
	size     int
	frame    int
	count    int // Number of samples currently in buffer
	mu       sync.Mutex
}

// NewRingBuffer creates a ring buffer holding capacity samples, rounded down to
// whole frames of frameSize samples (at least one frame)
func NewRingBuffer(capacity, frameSize int) *RingBuffer {
	if frameSize < 1 {
		frameSize = 1
	}
	capacity -= capacity % frameSize
	if capacity < frameSize {
		capacity = frameSize
	}
	return &RingBuffer{
		buffer: make([]int16, capacity),
		size:   capacity,
		frame:  frameSize,
	}
}

// Write adds the whole frames that fit and returns how many samples it stored.
// A trailing partial frame in samples is never stored.
func (rb *RingBuffer) Write(samples []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(len(samples), rb.size-rb.count)
	n -= n % rb.frame
	for i := 0; i < n; i++ {
		rb.buffer[rb.writePos] = samples[i]
		rb.writePos = (rb.writePos + 1) % rb.size
	}
	rb.count += n
	return n
}

// ReadFull fills samples only if enough are buffered, and reports whether it did
func (rb *RingBuffer) ReadFull(samples []int16) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count < len(samples) {
		return false
	}
	for i := range samples {
		samples[i] = rb.buffer[rb.readPos]
		rb.readPos = (rb.readPos + 1) % rb.size
	}
	rb.count -= len(samples)
	return true
}

// Available returns the number of samples available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Free returns the number of free slots in the buffer
func (rb *RingBuffer) Free() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size - rb.count
}
