// ABOUTME: Calibration tone player for checking meter readings
// ABOUTME: Plays a sine at a known level through the default output device
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/Resonate-Protocol/vumeter/internal/logger"
	"github.com/Resonate-Protocol/vumeter/pkg/audio"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/input"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/output"
)

var (
	hz       = flag.Float64("hz", input.DefaultToneHz, "Tone frequency")
	dbfs     = flag.Float64("dbfs", input.DefaultToneDBFS, "Peak level in dBFS")
	rate     = flag.Int("rate", 48000, "Sample rate in Hz")
	channels = flag.Int("channels", 2, "Channel count")
	duration = flag.Duration("duration", 0, "Stop after this long (0 plays until interrupted)")
	logLevel = flag.String("log-level", "info", "Log level")
)

// blockFrames keeps writes around 20ms at 48kHz
const blockFrames = 1024

func main() {
	flag.Parse()

	log := logrus.StandardLogger()
	logger.SetLevel(log, *logLevel)
	logger.SetFormat(log, "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := play(ctx, log); err != nil {
		log.Errorf("vumeter-tone: %v", err)
		os.Exit(1)
	}
}

func play(ctx context.Context, log *logrus.Logger) error {
	blockSize := blockFrames * *channels
	src, err := input.Open(input.Config{
		Backend:    "tone",
		Device:     input.DefaultDevice,
		Channels:   *channels,
		SampleRate: *rate,
		BlockSize:  blockSize,
		Format:     audio.FormatS16LE,
		ToneHz:     *hz,
		ToneDBFS:   *dbfs,
	})
	if err != nil {
		return err
	}
	defer src.Close()

	out := output.NewOto(logger.Component(log, "output"))
	if err := out.Open(*rate, *channels); err != nil {
		return err
	}
	defer out.Close()

	log.Infof("Playing %.1f Hz at %.1f dBFS peak; a meter should read %.2f dBFS RMS", *hz, *dbfs, *dbfs-3.01)
	start := time.Now()

	block := make([]int16, blockSize)
	for ctx.Err() == nil {
		n, err := src.Read(block)
		if err != nil {
			return err
		}
		if err := out.Write(block[:n]); err != nil {
			return err
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Infof("Played for %v", time.Since(start).Round(time.Millisecond))
	}
	return nil
}
