// ABOUTME: Capture loop reading fixed-size blocks and publishing per-channel levels
// ABOUTME: Never blocks on the consumer; a full level channel drops the new value
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/vumeter/internal/levelchan"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/input"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/level"
)

// Loop owns a Source and the producing halves of the level channels
type Loop struct {
	source   input.Source
	levels   []levelchan.Producer
	channels int
	block    []int16
	values   []float32
	log      *logrus.Entry

	stop    atomic.Bool
	blocks  atomic.Uint64
	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// Stats counts what the loop has done so far
type Stats struct {
	Blocks  uint64 // full blocks read
	Pushed  uint64 // values accepted by a level channel
	Dropped uint64 // values discarded because a level channel was full
}

// New creates a capture loop reading blockSize interleaved samples per iteration.
// The loop takes ownership of source and closes it when Run returns.
func New(source input.Source, levels []levelchan.Producer, blockSize int, log *logrus.Entry) (*Loop, error) {
	channels := source.Format().Channels
	if len(levels) != channels {
		return nil, fmt.Errorf("%d level channels for %d audio channels", len(levels), channels)
	}
	if blockSize < channels || blockSize%channels != 0 {
		return nil, fmt.Errorf("%w: block of %d samples, %d channels", level.ErrChannelMismatch, blockSize, channels)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Loop{
		source:   source,
		levels:   levels,
		channels: channels,
		block:    make([]int16, blockSize),
		values:   make([]float32, channels),
		log:      log,
	}, nil
}

// Run reads, reduces and publishes until Stop is called, ctx is done, the source
// reaches the end of its input, or a read fails. Read failures are returned as
// *input.DeviceError; a clean stop or end of input returns nil.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		if err := l.source.Close(); err != nil {
			l.log.Warnf("Error closing source: %v", err)
		}
		s := l.Stats()
		l.log.Infof("Capture stopped: %d blocks, %d levels published, %d dropped", s.Blocks, s.Pushed, s.Dropped)
	}()

	l.log.Infof("Capture started: %s, %d samples per block", l.source.Format(), len(l.block))

	for {
		if l.stop.Load() || ctx.Err() != nil {
			return nil
		}

		n, err := l.source.Read(l.block)
		if err != nil {
			if errors.Is(err, io.EOF) {
				l.log.Infof("End of input from %s", l.source.Name())
				return nil
			}
			if l.stop.Load() && errors.Is(err, input.ErrClosed) {
				return nil
			}
			var derr *input.DeviceError
			if errors.As(err, &derr) {
				return err
			}
			return &input.DeviceError{Op: "read", Err: err}
		}
		if n != len(l.block) {
			return &input.DeviceError{
				Op:  "read",
				Err: fmt.Errorf("%w: %d of %d samples", input.ErrShortRead, n, len(l.block)),
			}
		}
		l.blocks.Add(1)

		if err := level.ReduceInto(l.values, l.block, l.channels); err != nil {
			return err
		}
		l.publish()
	}
}

// publish offers one value per channel; a full channel means the consumer is behind
func (l *Loop) publish() {
	for ch, p := range l.levels {
		if p.Push(l.values[ch]) {
			l.pushed.Add(1)
		} else {
			l.dropped.Add(1)
		}
	}
}

// Stop asks the loop to return before its next read
func (l *Loop) Stop() {
	l.stop.Store(true)
}

// Stats returns a snapshot of the loop counters
func (l *Loop) Stats() Stats {
	return Stats{
		Blocks:  l.blocks.Load(),
		Pushed:  l.pushed.Load(),
		Dropped: l.dropped.Load(),
	}
}
