// ABOUTME: Layered configuration for the meter: defaults, TOML file, environment, flags
// ABOUTME: Produces a validated Config and derives the level channel capacity
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys
const (
	KeyBackend    = "device.backend"
	KeyDevice     = "device.name"
	KeyFile       = "device.file"
	KeyLoop       = "device.loop"
	KeyToneHz     = "device.tone_hz"
	KeyToneDBFS   = "device.tone_dbfs"
	KeyChannels   = "audio.channels"
	KeySampleRate = "audio.sample_rate"
	KeyBlockSize  = "audio.block_size"
	KeyTick       = "meter.tick"
	KeyFloorDB    = "meter.floor_db"
	KeySmoothing  = "meter.smoothing"
	KeyQueueSecs  = "meter.queue_seconds"
	KeyStopWait   = "meter.stop_timeout"
	KeyUIMode     = "ui.mode"
	KeyTitle      = "ui.title"
	KeyFeedListen = "feed.listen"
	KeyFeedName   = "feed.name"
	KeyFeedMDNS   = "feed.mdns"
	KeyFeedEvery  = "feed.interval"
	KeyLogLevel   = "log.level"
	KeyLogFormat  = "log.format"
	KeyLogFile    = "log.file"
)

// Config is the resolved configuration
type Config struct {
	Device DeviceConfig
	Audio  AudioConfig
	Meter  MeterConfig
	UI     UIConfig
	Feed   FeedConfig
	Log    LogConfig
}

type DeviceConfig struct {
	Backend  string
	Name     string
	File     string
	Loop     bool
	ToneHz   float64
	ToneDBFS float64
}

type AudioConfig struct {
	Channels   int
	SampleRate int
	BlockSize  int
}

type MeterConfig struct {
	Tick         time.Duration
	FloorDB      float64
	Smoothing    int
	QueueSeconds float64
	StopTimeout  time.Duration
}

type UIConfig struct {
	Mode  string
	Title string
}

type FeedConfig struct {
	Listen   string
	Name     string
	MDNS     bool
	Interval time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

// New returns a viper instance with defaults, search paths and env binding set up
func New() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetConfigType("toml")
	v.SetConfigName("config")
	v.AddConfigPath("/etc/vumeter")
	v.AddConfigPath("$HOME/.config/vumeter")
	v.SetEnvPrefix("VUMETER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyBackend, "malgo")
	v.SetDefault(KeyDevice, "default")
	v.SetDefault(KeyFile, "")
	v.SetDefault(KeyLoop, true)
	v.SetDefault(KeyToneHz, 440.0)
	v.SetDefault(KeyToneDBFS, -12.0)
	v.SetDefault(KeyChannels, 2)
	v.SetDefault(KeySampleRate, 48000)
	v.SetDefault(KeyBlockSize, 8192)
	v.SetDefault(KeyTick, 16*time.Millisecond)
	v.SetDefault(KeyFloorDB, -60.0)
	v.SetDefault(KeySmoothing, 1)
	v.SetDefault(KeyQueueSecs, 1.0)
	v.SetDefault(KeyStopWait, 2*time.Second)
	v.SetDefault(KeyUIMode, "auto")
	v.SetDefault(KeyTitle, "")
	v.SetDefault(KeyFeedListen, "")
	v.SetDefault(KeyFeedName, "")
	v.SetDefault(KeyFeedMDNS, false)
	v.SetDefault(KeyFeedEvery, 50*time.Millisecond)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyLogFile, "vumeter.log")
	return v
}

// Read loads the config file. An explicit path must exist; without one a missing
// file in the search paths is not an error.
func Read(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// BindFlags binds each flag to the key of the same name in flagKeys
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, flagKeys map[string]string) error {
	for flag, key := range flagKeys {
		f := flags.Lookup(flag)
		if f == nil {
			return fmt.Errorf("no flag named %q", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", flag, err)
		}
	}
	return nil
}

// Load resolves every key into a Config and validates it
func Load(v *viper.Viper) (Config, error) {
	c := Config{
		Device: DeviceConfig{
			Backend:  v.GetString(KeyBackend),
			Name:     v.GetString(KeyDevice),
			File:     v.GetString(KeyFile),
			Loop:     v.GetBool(KeyLoop),
			ToneHz:   v.GetFloat64(KeyToneHz),
			ToneDBFS: v.GetFloat64(KeyToneDBFS),
		},
		Audio: AudioConfig{
			Channels:   v.GetInt(KeyChannels),
			SampleRate: v.GetInt(KeySampleRate),
			BlockSize:  v.GetInt(KeyBlockSize),
		},
		Meter: MeterConfig{
			Tick:         v.GetDuration(KeyTick),
			FloorDB:      v.GetFloat64(KeyFloorDB),
			Smoothing:    v.GetInt(KeySmoothing),
			QueueSeconds: v.GetFloat64(KeyQueueSecs),
			StopTimeout:  v.GetDuration(KeyStopWait),
		},
		UI: UIConfig{
			Mode:  v.GetString(KeyUIMode),
			Title: v.GetString(KeyTitle),
		},
		Feed: FeedConfig{
			Listen:   v.GetString(KeyFeedListen),
			Name:     v.GetString(KeyFeedName),
			MDNS:     v.GetBool(KeyFeedMDNS),
			Interval: v.GetDuration(KeyFeedEvery),
		},
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
			File:   v.GetString(KeyLogFile),
		},
	}

	if c.Feed.Name == "" {
		c.Feed.Name = DefaultFeedName()
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// DefaultFeedName is hostname-vumeter
func DefaultFeedName() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-vumeter", hostname)
}

// Validate rejects settings no backend or loop could run with
func (c Config) Validate() error {
	var errs []error
	if c.Audio.Channels < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", KeyChannels, c.Audio.Channels))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", KeySampleRate, c.Audio.SampleRate))
	}
	if c.Audio.BlockSize <= 0 || (c.Audio.Channels > 0 && c.Audio.BlockSize%c.Audio.Channels != 0) {
		errs = append(errs, fmt.Errorf("%s must be a positive multiple of %s, got %d", KeyBlockSize, KeyChannels, c.Audio.BlockSize))
	}
	if c.Meter.Tick <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", KeyTick, c.Meter.Tick))
	}
	if c.Meter.FloorDB >= 0 {
		errs = append(errs, fmt.Errorf("%s must be below 0, got %v", KeyFloorDB, c.Meter.FloorDB))
	}
	if c.Meter.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", KeyStopWait, c.Meter.StopTimeout))
	}
	if c.Meter.Smoothing < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", KeySmoothing, c.Meter.Smoothing))
	}
	return errors.Join(errs...)
}

// QueueCapacity is the level channel capacity covering QueueSeconds of audio, at least 1
func (c Config) QueueCapacity() int {
	if c.Audio.BlockSize <= 0 {
		return 1
	}
	blocks := c.Meter.QueueSeconds * float64(c.Audio.SampleRate*c.Audio.Channels) / float64(c.Audio.BlockSize)
	n := int(math.Ceil(blocks))
	if n < 1 {
		return 1
	}
	return n
}
