// ABOUTME: Remote metering: a level feed to the local terminal
// ABOUTME: Finds the feed by mDNS when no address is given
package app

import (
	"context"
	"time"

	"github.com/Resonate-Protocol/vumeter/internal/client"
	"github.com/Resonate-Protocol/vumeter/internal/config"
	"github.com/Resonate-Protocol/vumeter/internal/discovery"
	"github.com/Resonate-Protocol/vumeter/internal/levelchan"
	"github.com/Resonate-Protocol/vumeter/internal/logger"
	"github.com/Resonate-Protocol/vumeter/internal/render"
	"github.com/Resonate-Protocol/vumeter/internal/version"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/input"
)

// BrowseTimeout bounds the mDNS search when watch has no address
const BrowseTimeout = 5 * time.Second

// Watch meters a remote feed until the user quits or the feed goes away
func Watch(ctx context.Context, cfg config.Config, addr string, opts Options) error {
	l := opts.logger()
	log := logger.Component(l, "app")

	if addr == "" {
		log.Infof("Browsing for level feeds...")
		found, err := discovery.FindFirst(ctx, BrowseTimeout, logger.Component(l, "discovery"))
		if err != nil {
			return &input.ConfigError{Backend: "feed", Device: "mdns", Err: err}
		}
		addr = found.Addr()
		log.Infof("Discovered %s at %s", found.Name, addr)
	}

	c := client.NewClient(client.Config{
		ServerAddr: addr,
		Name:       version.String(),
	}, logger.Component(l, "client"))
	if err := c.Connect(ctx); err != nil {
		return err
	}

	hello := c.Hello()
	producers, consumers := levelchan.NewSet(hello.Channels, watchQueue(cfg.Feed.Interval))

	surface, in := opts.surface(logger.Component(l, "ui"))
	loop := render.New(consumers, surface, in, renderConfig(cfg, hello.Name), logger.Component(l, "render"))

	return supervise(ctx, producer{
		name: "feed",
		run: func(ctx context.Context) error {
			return c.Run(ctx, producers)
		},
		stop: func() { c.Close() },
	}, loop, cfg.Meter.StopTimeout, log)
}

// watchQueue holds about a second of feed messages
func watchQueue(interval time.Duration) int {
	if interval <= 0 {
		return 1
	}
	n := int(time.Second / interval)
	if n < 1 {
		return 1
	}
	return n
}
