// ABOUTME: Local metering: capture device to terminal
// ABOUTME: Optionally publishes the same frames as a websocket level feed
package app

import (
	"context"
	"fmt"

	"github.com/Resonate-Protocol/vumeter/internal/capture"
	"github.com/Resonate-Protocol/vumeter/internal/config"
	"github.com/Resonate-Protocol/vumeter/internal/levelchan"
	"github.com/Resonate-Protocol/vumeter/internal/logger"
	"github.com/Resonate-Protocol/vumeter/internal/render"
	"github.com/Resonate-Protocol/vumeter/internal/server"
	"github.com/Resonate-Protocol/vumeter/pkg/audio"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/input"
)

// InputConfig maps the configuration onto a capture request
func InputConfig(cfg config.Config) input.Config {
	return input.Config{
		Backend:    cfg.Device.Backend,
		Device:     cfg.Device.Name,
		Channels:   cfg.Audio.Channels,
		SampleRate: cfg.Audio.SampleRate,
		BlockSize:  cfg.Audio.BlockSize,
		Format:     audio.FormatS16LE,
		File:       cfg.Device.File,
		Loop:       cfg.Device.Loop,
		ToneHz:     cfg.Device.ToneHz,
		ToneDBFS:   cfg.Device.ToneDBFS,
		Pace:       true,
	}
}

// Meter opens the configured source and meters it until the user quits.
// A source that cannot be opened is returned as *input.ConfigError before
// anything is started or drawn.
func Meter(ctx context.Context, cfg config.Config, opts Options) error {
	l := opts.logger()
	log := logger.Component(l, "app")

	open := opts.OpenSource
	if open == nil {
		open = input.Open
	}
	src, err := open(InputConfig(cfg))
	if err != nil {
		return err
	}

	format := src.Format()
	log.Infof("Opened %s: %s", src.Name(), format)

	producers, consumers := levelchan.NewSet(format.Channels, cfg.QueueCapacity())
	capLoop, err := capture.New(src, producers, cfg.Audio.BlockSize, logger.Component(l, "capture"))
	if err != nil {
		src.Close()
		return fmt.Errorf("create capture loop: %w", err)
	}

	surface, in := opts.surface(logger.Component(l, "ui"))
	if cfg.Feed.Listen != "" {
		feed := server.New(server.Config{
			Listen:     cfg.Feed.Listen,
			Name:       cfg.Feed.Name,
			Channels:   format.Channels,
			SampleRate: format.SampleRate,
			Interval:   cfg.Feed.Interval,
			EnableMDNS: cfg.Feed.MDNS,
		}, logger.Component(l, "feed"))
		surface = render.Tee(surface, feed)
	}

	loop := render.New(consumers, surface, in, renderConfig(cfg, src.Name()), logger.Component(l, "render"))

	return supervise(ctx, producer{
		name: "capture",
		run:  capLoop.Run,
		stop: capLoop.Stop,
	}, loop, cfg.Meter.StopTimeout, log)
}
