// ABOUTME: Render loop draining level channels and redrawing on a fixed cadence
// ABOUTME: Owns the display state and guarantees surface teardown on every exit path
package render

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/vumeter/internal/fault"
	"github.com/Resonate-Protocol/vumeter/internal/levelchan"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/level"
)

// DefaultTick keeps redraws at roughly 60 per second
const DefaultTick = 16 * time.Millisecond

// State is the render loop lifecycle
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Config controls what the loop draws and how often
type Config struct {
	Title     string
	Labels    []string // one per channel; defaults to L/R for stereo, 1..n otherwise
	Tick      time.Duration
	Scale     level.Scale
	Smoothing int
}

// Loop is the consumer side of the pipeline
type Loop struct {
	levels  []levelchan.Consumer
	surface Surface
	input   Input
	cfg     Config
	display *Display
	log     *logrus.Entry

	state     atomic.Int32
	ticks     atomic.Uint64
	fresh     atomic.Uint64
	leaveOnce sync.Once
	leaveErr  error
}

// New creates a render loop over one consumer per channel
func New(levels []levelchan.Consumer, surface Surface, input Input, cfg Config, log *logrus.Entry) *Loop {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if len(cfg.Labels) != len(levels) {
		cfg.Labels = DefaultLabels(len(levels))
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Loop{
		levels:  levels,
		surface: surface,
		input:   input,
		cfg:     cfg,
		display: NewDisplay(len(levels), cfg.Smoothing),
		log:     log,
	}
}

// DefaultLabels names channels L and R for stereo and by number otherwise
func DefaultLabels(channels int) []string {
	if channels == 2 {
		return []string{"L", "R"}
	}
	labels := make([]string, channels)
	for i := range labels {
		labels[i] = strconv.Itoa(i + 1)
	}
	return labels
}

// Run enters the surface and redraws every tick until the user quits, ctx is done,
// or the surface fails. The surface is left exactly once on every exit path,
// including panics here and, through the fault observer, in other goroutines.
func (l *Loop) Run(ctx context.Context) (err error) {
	if err := l.surface.Enter(); err != nil {
		l.state.Store(int32(StateTerminated))
		return &SurfaceError{Op: "enter", Err: err}
	}

	unregister := fault.OnFault(l.teardown)
	defer func() {
		unregister()
		l.teardown()
		l.state.Store(int32(StateTerminated))
		if err == nil && l.leaveErr != nil {
			err = &SurfaceError{Op: "leave", Err: l.leaveErr}
		}
	}()

	l.state.Store(int32(StateRunning))
	l.log.Debugf("Render loop running at %v per tick", l.cfg.Tick)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := l.tick(); err != nil {
			return err
		}

		ev, err := l.input.Poll(l.cfg.Tick)
		if err != nil {
			return &SurfaceError{Op: "input", Err: err}
		}
		if ev == EventQuit {
			l.log.Infof("Quit requested after %d ticks", l.ticks.Load())
			return nil
		}
	}
}

// tick drains the freshest value per channel and draws one frame
func (l *Loop) tick() error {
	l.ticks.Add(1)
	for ch, c := range l.levels {
		if v, ok := c.Drain(); ok {
			l.display.Observe(ch, v)
			l.fresh.Add(1)
		}
	}

	if err := l.surface.Draw(l.Frame()); err != nil {
		return &SurfaceError{Op: "draw", Err: err}
	}
	return nil
}

// Frame builds the frame for the current display state
func (l *Loop) Frame() Frame {
	bars := make([]Bar, l.display.Channels())
	for ch := range bars {
		db := l.display.Level(ch)
		bars[ch] = Bar{
			Label: l.cfg.Labels[ch],
			Value: l.cfg.Scale.Percent(db),
			Level: db,
		}
	}
	return Frame{
		Seq:    l.ticks.Load(),
		Groups: []Group{{Title: l.cfg.Title, Bars: bars}},
	}
}

func (l *Loop) teardown() {
	l.leaveOnce.Do(func() {
		l.leaveErr = l.surface.Leave()
	})
}

// State returns the lifecycle state
func (l *Loop) State() State { return State(l.state.Load()) }

// Ticks returns how many frames have been drawn or attempted
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// Fresh returns how many level values were observed
func (l *Loop) Fresh() uint64 { return l.fresh.Load() }
