// ABOUTME: Command tree for the vumeter binary
// ABOUTME: Binds flags to configuration keys and dispatches to the orchestrator
package cli

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Resonate-Protocol/vumeter/internal/config"
	"github.com/Resonate-Protocol/vumeter/internal/logger"
	"github.com/Resonate-Protocol/vumeter/internal/ui"
)

// globalFlags apply to every subcommand
var globalFlags = map[string]string{
	"log-level":  config.KeyLogLevel,
	"log-format": config.KeyLogFormat,
	"log-file":   config.KeyLogFile,
	"ui":         config.KeyUIMode,
	"title":      config.KeyTitle,
	"tick":       config.KeyTick,
	"floor-db":   config.KeyFloorDB,
	"smoothing":  config.KeySmoothing,
}

// meterFlags select and shape the capture
var meterFlags = map[string]string{
	"backend":    config.KeyBackend,
	"device":     config.KeyDevice,
	"file":       config.KeyFile,
	"loop":       config.KeyLoop,
	"tone-hz":    config.KeyToneHz,
	"tone-dbfs":  config.KeyToneDBFS,
	"channels":   config.KeyChannels,
	"rate":       config.KeySampleRate,
	"block-size": config.KeyBlockSize,
	"listen":     config.KeyFeedListen,
	"feed-name":  config.KeyFeedName,
	"mdns":       config.KeyFeedMDNS,
}

type env struct {
	v          *viper.Viper
	configPath string
	log        *logrus.Logger
	logCloser  io.Closer
}

// NewRootCmd builds the command tree with its own configuration instance
func NewRootCmd() *cobra.Command {
	e := &env{v: config.New(), log: logrus.StandardLogger()}

	root := &cobra.Command{
		Use:           "vumeter",
		Short:         "Real-time audio level meter",
		Long:          "vumeter captures audio and shows per-channel RMS levels in dBFS as live bars.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.closeLog()
		},
		RunE: e.runMeter,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&e.configPath, "config", "c", "", "Optional path to a TOML config file")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")
	pf.String("log-file", "vumeter.log", "Log file path (empty disables file logging)")
	pf.String("ui", "auto", "Surface: auto, tui or plain")
	pf.String("title", "", "Bar group title (default: device name)")
	pf.Duration("tick", 0, "Redraw interval (default 16ms)")
	pf.Float64("floor-db", 0, "Level shown as an empty bar (default -60)")
	pf.Int("smoothing", 0, "Number of levels averaged per bar (default 1, off)")

	f := root.Flags()
	f.StringP("backend", "b", "malgo", "Capture backend (malgo, portaudio, pulse, tone, file)")
	f.StringP("device", "d", "default", "Capture device name")
	f.String("file", "", "Audio file for the file backend (MP3 or FLAC)")
	f.Bool("loop", true, "Loop the file backend at end of input")
	f.Float64("tone-hz", 440, "Tone backend frequency")
	f.Float64("tone-dbfs", -12, "Tone backend peak level in dBFS")
	f.Int("channels", 2, "Channel count")
	f.Int("rate", 48000, "Sample rate in Hz")
	f.Int("block-size", 8192, "Interleaved samples per block")
	f.String("listen", "", "Publish levels as a websocket feed on this address, e.g. :8928")
	f.String("feed-name", "", "Feed name (default: hostname-vumeter)")
	f.Bool("mdns", false, "Advertise the feed over mDNS")

	root.AddCommand(e.devicesCmd(), e.watchCmd(), versionCmd())
	return root
}

// Execute runs the command tree
func Execute() error {
	return NewRootCmd().Execute()
}

// load reads the config file, binds the flags of cmd and resolves the configuration
func (e *env) load(cmd *cobra.Command, local map[string]string) (config.Config, error) {
	if err := config.Read(e.v, e.configPath); err != nil {
		return config.Config{}, err
	}
	// Only flags the user set override file and environment
	if err := bindChanged(e.v, cmd, globalFlags); err != nil {
		return config.Config{}, err
	}
	if err := bindChanged(e.v, cmd, local); err != nil {
		return config.Config{}, err
	}
	return config.Load(e.v)
}

func bindChanged(v *viper.Viper, cmd *cobra.Command, flags map[string]string) error {
	changed := map[string]string{}
	for name, key := range flags {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			changed[name] = key
		}
	}
	return config.BindFlags(v, cmd.Flags(), changed)
}

// setupLog resolves the surface mode and points logging away from the terminal
// when the full-screen surface will own it
func (e *env) setupLog(cfg config.Config) (ui.Mode, error) {
	mode, err := ui.Resolve(cfg.UI.Mode)
	if err != nil {
		return "", err
	}

	closer, err := logger.Setup(e.log, logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		File:    cfg.Log.File,
		Console: mode == ui.ModePlain,
	})
	if err != nil {
		return "", fmt.Errorf("set up logging: %w", err)
	}
	e.logCloser = closer
	return mode, nil
}

func (e *env) closeLog() {
	if e.logCloser != nil {
		e.logCloser.Close()
		e.logCloser = nil
	}
}
