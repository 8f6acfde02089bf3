// ABOUTME: Terminal surface backed by a bubbletea program on the alternate screen
// ABOUTME: Implements both the render surface and its keyboard input
package ui

import (
	"errors"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Resonate-Protocol/vumeter/internal/render"
)

// quitGrace bounds how long Leave waits for the program to restore the terminal
// before killing it
const quitGrace = 2 * time.Second

// ErrScreenClosed is returned when drawing after the program has exited
var ErrScreenClosed = errors.New("screen closed")

// Screen is a full-screen terminal meter
type Screen struct {
	opts []tea.ProgramOption

	program *tea.Program
	events  chan render.Event
	ready   chan struct{}
	done    chan struct{}
	runErr  error

	leaveOnce sync.Once
	leaveErr  error
}

// NewScreen creates a screen; extra options are passed to the bubbletea program
func NewScreen(opts ...tea.ProgramOption) *Screen {
	return &Screen{opts: opts}
}

// Enter starts the program and waits until it owns the terminal
func (s *Screen) Enter() error {
	s.events = make(chan render.Event, 1)
	s.ready = make(chan struct{})
	s.done = make(chan struct{})

	opts := append([]tea.ProgramOption{tea.WithAltScreen()}, s.opts...)
	s.program = tea.NewProgram(newModel(s.events, s.ready), opts...)

	go func() {
		defer close(s.done)
		_, err := s.program.Run()
		s.runErr = err
	}()

	select {
	case <-s.ready:
		return nil
	case <-s.done:
		if s.runErr != nil {
			return s.runErr
		}
		return ErrScreenClosed
	}
}

// Draw hands the frame to the program for its next repaint
func (s *Screen) Draw(f render.Frame) error {
	select {
	case <-s.done:
		if s.runErr != nil && !isInterrupt(s.runErr) {
			return s.runErr
		}
		return ErrScreenClosed
	default:
	}
	s.program.Send(frameMsg(f))
	return nil
}

// Poll waits for a key event. A program that ended on its own counts as a quit.
func (s *Screen) Poll(timeout time.Duration) (render.Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
		if s.runErr != nil && !isInterrupt(s.runErr) {
			return render.EventNone, s.runErr
		}
		return render.EventQuit, nil
	case <-timer.C:
		return render.EventNone, nil
	}
}

// Leave stops the program and waits for it to restore the terminal. Safe to call
// more than once and from any goroutine.
func (s *Screen) Leave() error {
	s.leaveOnce.Do(func() {
		if s.program == nil {
			return
		}
		s.program.Quit()
		select {
		case <-s.done:
		case <-time.After(quitGrace):
			s.program.Kill()
			<-s.done
		}
		if s.runErr != nil && !isInterrupt(s.runErr) && !errors.Is(s.runErr, tea.ErrProgramKilled) {
			s.leaveErr = s.runErr
		}
	})
	return s.leaveErr
}

func isInterrupt(err error) bool {
	return errors.Is(err, tea.ErrInterrupted)
}
