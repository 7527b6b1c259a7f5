// SPDX-License-Identifier: EPL-2.0

// Package config loads engine settings with viper and sets up slog.
//
// Values come, in increasing precedence, from the built-in defaults, an
// optional YAML, TOML or JSON file and AUDENGINE_ environment variables
// (AUDENGINE_SAMPLERATE, AUDENGINE_RECORDER_MAXDURATION, ...).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ik5/audengine/analyser"
	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/backend"
	"github.com/ik5/audengine/recorder"
)

const EnvPrefix = "AUDENGINE"

// DefaultBackends is the order in which device layers are tried.
var DefaultBackends = []string{"native-exclusive", "native-shared", "browser-graph", "virtual"}

type Config struct {
	LogLevel string
	LogFile  string

	Stream backend.StreamConfig
	// RingBlocks is the depth, in callback blocks, of the output ring.
	RingBlocks int
	Backends   []backend.Kind

	FFTSize           int
	AnalyserSmoothing float64

	RecorderMaxDuration time.Duration
	RecorderChannels    int

	MonitorMode recorder.MonitorMode
	MonitorGain float64

	EQStrict bool
}

func setViperDefaults(v *viper.Viper) {
	stream := backend.DefaultStreamConfig()

	v.SetDefault("loglevel", "info")
	v.SetDefault("logfile", "")
	v.SetDefault("samplerate", stream.SampleRate)
	v.SetDefault("channels", stream.Channels)
	v.SetDefault("format", stream.Format.String())
	v.SetDefault("bufferframes", stream.BufferFrames)
	v.SetDefault("exclusive", false)
	v.SetDefault("ringblocks", 4)
	v.SetDefault("backends", DefaultBackends)
	v.SetDefault("fftsize", analyser.DefaultSize)
	v.SetDefault("analysersmoothing", analyser.DefaultSmoothing)
	v.SetDefault("recorder.maxduration", recorder.DefaultMaxDuration)
	v.SetDefault("recorder.channels", 2)
	v.SetDefault("monitoring.mode", recorder.MonitorOff.String())
	v.SetDefault("monitoring.gain", 1.0)
	v.SetDefault("eq.strict", false)
}

// Default returns the built-in settings, ignoring files and environment.
func Default() *Config {
	v := viper.New()
	setViperDefaults(v)

	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load reads configFilePath when it is not empty and applies environment
// overrides. A missing file is not an error.
func Load(configFilePath string) (*Config, error) {
	v := viper.New()
	setViperDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFilePath != "" {
		v.SetConfigFile(configFilePath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, audio.E(audio.IoError, "load config", err)
			}
			slog.Info("no config file found", "configFilePath", configFilePath)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	format, err := backend.ParseSampleFormat(v.GetString("format"))
	if err != nil {
		return nil, err
	}
	mode, err := recorder.ParseMonitorMode(v.GetString("monitoring.mode"))
	if err != nil {
		return nil, err
	}
	backends, err := parseBackends(v.GetStringSlice("backends"))
	if err != nil {
		return nil, err
	}

	return &Config{
		LogLevel: v.GetString("loglevel"),
		LogFile:  v.GetString("logfile"),
		Stream: backend.StreamConfig{
			SampleRate:   v.GetInt("samplerate"),
			Channels:     v.GetInt("channels"),
			Format:       format,
			BufferFrames: v.GetInt("bufferframes"),
			Exclusive:    v.GetBool("exclusive"),
		},
		RingBlocks:          v.GetInt("ringblocks"),
		Backends:            backends,
		FFTSize:             v.GetInt("fftsize"),
		AnalyserSmoothing:   v.GetFloat64("analysersmoothing"),
		RecorderMaxDuration: v.GetDuration("recorder.maxduration"),
		RecorderChannels:    v.GetInt("recorder.channels"),
		MonitorMode:         mode,
		MonitorGain:         v.GetFloat64("monitoring.gain"),
		EQStrict:            v.GetBool("eq.strict"),
	}, nil
}

// parseBackends accepts list entries as well as one comma separated string,
// which is how the list arrives from the environment.
func parseBackends(names []string) ([]backend.Kind, error) {
	var kinds []backend.Kind
	for _, entry := range names {
		for name := range strings.SplitSeq(entry, ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			k, err := backend.ParseKind(name)
			if err != nil {
				return nil, err
			}
			if !slices.Contains(kinds, k) {
				kinds = append(kinds, k)
			}
		}
	}
	return kinds, nil
}

func outOfRange(format string, args ...any) error {
	return audio.Errorf(audio.OutOfRange, "validate config", format, args...)
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains(backend.SampleRates, c.Stream.SampleRate) {
		errs = append(errs, outOfRange("sample rate %d not in %v", c.Stream.SampleRate, backend.SampleRates))
	}
	if c.Stream.Channels < 1 || c.Stream.Channels > backend.MaxChannels {
		errs = append(errs, outOfRange("channels %d not in [1,%d]", c.Stream.Channels, backend.MaxChannels))
	}
	if c.Stream.BufferFrames < 16 || c.Stream.BufferFrames > 8192 {
		errs = append(errs, outOfRange("buffer of %d frames not in [16,8192]", c.Stream.BufferFrames))
	}
	if c.RingBlocks < 2 {
		errs = append(errs, outOfRange("ring of %d blocks, need at least 2", c.RingBlocks))
	}
	if len(c.Backends) == 0 {
		errs = append(errs, outOfRange("no backends listed"))
	}
	if !analyser.ValidSize(c.FFTSize) {
		errs = append(errs, outOfRange("fft size %d", c.FFTSize))
	}
	if c.AnalyserSmoothing < 0 || c.AnalyserSmoothing > 1 {
		errs = append(errs, outOfRange("analyser smoothing %v not in [0,1]", c.AnalyserSmoothing))
	}
	if c.RecorderMaxDuration <= 0 {
		errs = append(errs, outOfRange("recorder max duration %v", c.RecorderMaxDuration))
	}
	if c.RecorderChannels < 1 || c.RecorderChannels > backend.MaxChannels {
		errs = append(errs, outOfRange("recorder channels %d not in [1,%d]", c.RecorderChannels, backend.MaxChannels))
	}
	if c.MonitorGain < 0 || c.MonitorGain > 1 {
		errs = append(errs, outOfRange("monitoring gain %v not in [0,1]", c.MonitorGain))
	}

	return errors.Join(errs...)
}
