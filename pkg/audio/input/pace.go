// ABOUTME: Real-time pacing for synthetic and file sources
// ABOUTME: Releases one block per block period, like a capture device would
package input

import (
	"sync"
	"time"
)

// pacer blocks reads so a non-hardware source produces blocks at the device rate
type pacer struct {
	period time.Duration
	start  time.Time
	n      int64

	closeOnce sync.Once
	closed    chan struct{}
}

func newPacer(period time.Duration) *pacer {
	return &pacer{period: period, closed: make(chan struct{})}
}

// wait sleeps until the next block is due. It returns ErrClosed if close interrupts it.
func (p *pacer) wait() error {
	if p.start.IsZero() {
		p.start = time.Now()
	}
	p.n++
	due := p.start.Add(time.Duration(p.n) * p.period)
	d := time.Until(due)
	if d <= 0 {
		select {
		case <-p.closed:
			return ErrClosed
		default:
			return nil
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-p.closed:
		return ErrClosed
	}
}

func (p *pacer) close() {
	p.closeOnce.Do(func() { close(p.closed) })
}

func (p *pacer) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}
