// ABOUTME: Bounded non-blocking hand-off of loudness values between two goroutines
// ABOUTME: One Producer and one Consumer half per audio channel
package levelchan

// Producer is the sending half of a level channel. It must be owned by a single goroutine.
type Producer struct {
	ch chan<- float32
}

// Consumer is the receiving half of a level channel. It must be owned by a single goroutine.
type Consumer struct {
	ch <-chan float32
}

// New creates a level channel holding at most capacity values
func New(capacity int) (Producer, Consumer) {
	if capacity < 1 {
		capacity = 1
	}
	ch := make(chan float32, capacity)
	return Producer{ch: ch}, Consumer{ch: ch}
}

// NewSet creates one level channel per audio channel
func NewSet(channels, capacity int) ([]Producer, []Consumer) {
	producers := make([]Producer, channels)
	consumers := make([]Consumer, channels)
	for i := 0; i < channels; i++ {
		producers[i], consumers[i] = New(capacity)
	}
	return producers, consumers
}

// Push offers a value without blocking. It returns false when the channel is full,
// in which case the value is dropped and the queued values are left untouched.
func (p Producer) Push(v float32) bool {
	select {
	case p.ch <- v:
		return true
	default:
		return false
	}
}

// Len returns the number of queued values
func (p Producer) Len() int { return len(p.ch) }

// Cap returns the channel capacity
func (p Producer) Cap() int { return cap(p.ch) }

// Pop takes the oldest queued value without blocking. It returns false when empty.
func (c Consumer) Pop() (float32, bool) {
	select {
	case v := <-c.ch:
		return v, true
	default:
		return 0, false
	}
}

// Drain pops every queued value and returns the newest one.
// It returns false when nothing was queued.
func (c Consumer) Drain() (float32, bool) {
	var (
		last float32
		got  bool
	)
	for {
		v, ok := c.Pop()
		if !ok {
			return last, got
		}
		last, got = v, true
	}
}

// Len returns the number of queued values
func (c Consumer) Len() int { return len(c.ch) }
