// ABOUTME: Lifecycle orchestration of the metering pipeline
// ABOUTME: Opens the source, wires level channels, runs producer and render loop and joins them
package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/vumeter/internal/config"
	"github.com/Resonate-Protocol/vumeter/internal/fault"
	"github.com/Resonate-Protocol/vumeter/internal/render"
	"github.com/Resonate-Protocol/vumeter/internal/ui"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/input"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/level"
)

// Options carries what the command line decides outside the config
type Options struct {
	// Mode picks the surface when Surface is nil
	Mode ui.Mode

	// Surface and Input replace the terminal; both must be set together
	Surface render.Surface
	Input   render.Input

	// OpenSource replaces input.Open
	OpenSource func(input.Config) (input.Source, error)

	Log *logrus.Logger
}

func (o Options) logger() *logrus.Logger {
	if o.Log == nil {
		return logrus.StandardLogger()
	}
	return o.Log
}

func (o Options) surface(log *logrus.Entry) (render.Surface, render.Input) {
	if o.Surface != nil {
		return o.Surface, o.Input
	}
	return ui.Open(o.Mode, log)
}

func renderConfig(cfg config.Config, title string) render.Config {
	if cfg.UI.Title != "" {
		title = cfg.UI.Title
	}
	return render.Config{
		Title:     title,
		Tick:      cfg.Meter.Tick,
		Scale:     level.Scale{FloorDB: float32(cfg.Meter.FloorDB)},
		Smoothing: cfg.Meter.Smoothing,
	}
}

// producer is the single writer of the level channels
type producer struct {
	name string
	run  func(context.Context) error
	stop func()
}

// supervise runs the producer and the render loop on their own goroutines.
//
// When the render loop ends (quit, surface failure, or ctx) the producer is asked to
// stop and is waited for at most stopTimeout; a producer wedged in a device read is
// left to process exit. When the producer fails, the render loop is cancelled so the
// surface is restored before the error is returned. A producer that simply runs out
// of input leaves the last levels on screen until the user quits.
func supervise(ctx context.Context, p producer, loop *render.Loop, stopTimeout time.Duration, log *logrus.Entry) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	// Written before the group cancels the render loop, so it is visible by renderDone
	producerDone := make(chan struct{})
	g.Go(func() error {
		defer fault.Observe()
		err := p.run(gctx)
		if err != nil {
			log.Errorf("%s failed: %v", p.name, err)
		}
		close(producerDone)
		return err
	})

	renderDone := make(chan error, 1)
	g.Go(func() error {
		defer fault.Observe()
		err := loop.Run(gctx)
		cancel()
		p.stop()
		renderDone <- err
		return err
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	renderErr := <-renderDone
	select {
	case <-producerDone:
		return <-done
	default:
	}

	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-producerDone:
		return <-done
	case <-timer.C:
		log.Warnf("%s did not stop within %v, leaving it to process exit", p.name, stopTimeout)
		return renderErr
	}
}

// IsConfigError reports whether err happened before the pipeline started
func IsConfigError(err error) bool {
	var cerr *input.ConfigError
	return errors.As(err, &cerr)
}
