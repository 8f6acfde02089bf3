// ABOUTME: Contracts between the render loop and the visual surface and input source
// ABOUTME: Defines frames, input events and the render surface error
package render

import (
	"fmt"
	"time"
)

// Event is a user input the render loop reacts to
type Event int

const (
	// EventNone means the poll timed out without a meaningful event
	EventNone Event = iota
	// EventQuit asks the render loop to terminate
	EventQuit
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventQuit:
		return "quit"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Bar is one channel's meter
type Bar struct {
	Label string
	Value float64 // 0..100
	Level float32 // dBFS
}

// Group is a titled set of bars, one per channel of a source
type Group struct {
	Title string
	Bars  []Bar
}

// Frame describes everything drawn in one tick
type Frame struct {
	Seq    uint64
	Groups []Group
}

// Surface is the visual output. Enter acquires it (for a terminal: raw mode and the
// alternate screen) and Leave restores the prior state.
type Surface interface {
	Enter() error
	Draw(Frame) error
	Leave() error
}

// Input delivers user events
type Input interface {
	// Poll waits at most timeout for an event and returns EventNone when none arrived
	Poll(timeout time.Duration) (Event, error)
}

// SurfaceError reports a failure to enter, draw on, or leave the surface, or to read input
type SurfaceError struct {
	Op  string
	Err error
}

func (e *SurfaceError) Error() string {
	return fmt.Sprintf("render surface %s: %v", e.Op, e.Err)
}

func (e *SurfaceError) Unwrap() error { return e.Err }
