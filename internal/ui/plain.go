// ABOUTME: Line-oriented surface for pipes, services and dumb terminals
// ABOUTME: Logs levels at a limited rate and treats SIGINT or SIGTERM as quit
package ui

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/vumeter/internal/render"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/level"
)

// DefaultLogInterval is the fastest the plain surface writes a line
const DefaultLogInterval = time.Second

// SigChanFunc creates the channel signals are delivered on
var SigChanFunc = defaultSigChanFunc

func defaultSigChanFunc() chan os.Signal {
	return make(chan os.Signal, 1)
}

// Plain logs levels instead of drawing them
type Plain struct {
	log      *logrus.Entry
	interval time.Duration
	now      func() time.Time

	last    time.Time
	signals chan os.Signal
}

// NewPlain creates a plain surface writing at most one line per interval
func NewPlain(log *logrus.Entry, interval time.Duration) *Plain {
	if interval <= 0 {
		interval = DefaultLogInterval
	}
	return &Plain{log: log, interval: interval, now: time.Now}
}

func (p *Plain) Enter() error {
	p.signals = SigChanFunc()
	signal.Notify(p.signals, syscall.SIGINT, syscall.SIGTERM)
	p.log.Info("Metering started, press Ctrl+C to stop")
	return nil
}

func (p *Plain) Draw(f render.Frame) error {
	now := p.now()
	if !p.last.IsZero() && now.Sub(p.last) < p.interval {
		return nil
	}
	p.last = now

	for _, g := range f.Groups {
		fields := logrus.Fields{}
		for _, bar := range g.Bars {
			fields[bar.Label] = strings.TrimSpace(level.Format(bar.Level))
		}
		entry := p.log.WithFields(fields)
		if g.Title != "" {
			entry = entry.WithField("source", g.Title)
		}
		entry.Info("levels")
	}
	return nil
}

func (p *Plain) Poll(timeout time.Duration) (render.Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sig := <-p.signals:
		p.log.Infof("Received %v", sig)
		return render.EventQuit, nil
	case <-timer.C:
		return render.EventNone, nil
	}
}

func (p *Plain) Leave() error {
	if p.signals != nil {
		signal.Stop(p.signals)
	}
	p.log.Info("Metering stopped")
	return nil
}
