// SPDX-License-Identifier: EPL-2.0

package backend

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ik5/audengine/audio"
)

// SampleFormat is the device-native sample encoding.
type SampleFormat int

const (
	F32 SampleFormat = iota
	I16
	I32
)

func (f SampleFormat) String() string {
	switch f {
	case I16:
		return "i16"
	case I32:
		return "i32"
	default:
		return "f32"
	}
}

// BytesPerSample is the encoded width of one sample.
func (f SampleFormat) BytesPerSample() int {
	if f == I16 {
		return 2
	}
	return 4
}

func ParseSampleFormat(s string) (SampleFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "f32", "float32", "":
		return F32, nil
	case "i16", "int16", "s16":
		return I16, nil
	case "i32", "int32", "s32":
		return I32, nil
	}
	return F32, audio.Errorf(audio.UnsupportedFormat, "parse sample format", "%q", s)
}

var (
	// SampleRates lists the rates a stream may run at.
	SampleRates = []int{44100, 48000, 88200, 96000, 192000}
	// ExclusiveBufferSizes are negotiated when a device grants exclusive access.
	ExclusiveBufferSizes = []int{64, 128, 256, 512, 1024}
	// SharedBufferSizes are exposed through the system mixer.
	SharedBufferSizes = []int{512, 1024, 2048}
)

const MaxChannels = 8

// StreamConfig is fixed for the lifetime of a stream.
type StreamConfig struct {
	SampleRate   int
	Channels     int
	Format       SampleFormat
	BufferFrames int
	Exclusive    bool
}

// DefaultStreamConfig is 48 kHz stereo float with a shared-mode block.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		SampleRate:   48000,
		Channels:     2,
		Format:       F32,
		BufferFrames: 512,
	}
}

func (c StreamConfig) Validate() error {
	if !slices.Contains(SampleRates, c.SampleRate) {
		return audio.Errorf(audio.UnsupportedFormat, "validate stream config", "sample rate %d", c.SampleRate)
	}
	if c.Channels < 1 || c.Channels > MaxChannels {
		return audio.Errorf(audio.UnsupportedFormat, "validate stream config", "%d channels", c.Channels)
	}
	if c.BufferFrames <= 0 {
		return audio.Errorf(audio.UnsupportedFormat, "validate stream config", "buffer of %d frames", c.BufferFrames)
	}
	return nil
}

// BlockSamples is the interleaved length of one callback buffer.
func (c StreamConfig) BlockSamples() int { return c.BufferFrames * c.Channels }

// BlockDuration is the wall time covered by one callback buffer.
func (c StreamConfig) BlockDuration() time.Duration {
	return audio.FramesToDuration(c.BufferFrames, c.SampleRate)
}

func (c StreamConfig) String() string {
	mode := "shared"
	if c.Exclusive {
		mode = "exclusive"
	}
	return fmt.Sprintf("%d Hz %dch %s %d frames %s", c.SampleRate, c.Channels, c.Format, c.BufferFrames, mode)
}

// BufferSizes returns the sizes offered in the given mode.
func BufferSizes(exclusive bool) []int {
	if exclusive {
		return ExclusiveBufferSizes
	}
	return SharedBufferSizes
}

// NegotiateBufferSize picks the smallest offered size that holds requested
// frames, or the largest one when none does.
func NegotiateBufferSize(requested int, exclusive bool) int {
	sizes := BufferSizes(exclusive)
	for _, s := range sizes {
		if s >= requested {
			return s
		}
	}
	return sizes[len(sizes)-1]
}

// Negotiate fits cfg to what the device can do. When exclusive access was
// asked for and is not available the result is a shared-mode config and
// downgraded is true; the caller logs and reports it.
func Negotiate(cfg StreamConfig, exclusiveSupported bool) (out StreamConfig, downgraded bool) {
	out = cfg
	if cfg.Exclusive && !exclusiveSupported {
		out.Exclusive = false
		downgraded = true
	}
	out.BufferFrames = NegotiateBufferSize(cfg.BufferFrames, out.Exclusive)
	return out, downgraded
}

// DeviceInfo describes one endpoint.
type DeviceInfo struct {
	ID                string
	Name              string
	HostAPI           string
	IsDefault         bool
	SupportedConfigs  []StreamConfig
	MinSampleRate     int
	MaxSampleRate     int
	MaxInputChannels  int
	MaxOutputChannels int
	Exclusive         bool // device can run in exclusive, low-latency mode
}

// MaxChannels is the channel limit in the given direction.
func (d DeviceInfo) MaxChannels(dir Direction) int {
	if dir == Input {
		return d.MaxInputChannels
	}
	return d.MaxOutputChannels
}

// Supports reports whether cfg fits the device's limits in dir.
func (d DeviceInfo) Supports(cfg StreamConfig, dir Direction) bool {
	if cfg.Channels > d.MaxChannels(dir) {
		return false
	}
	if d.MinSampleRate > 0 && cfg.SampleRate < d.MinSampleRate {
		return false
	}
	if d.MaxSampleRate > 0 && cfg.SampleRate > d.MaxSampleRate {
		return false
	}
	return !cfg.Exclusive || d.Exclusive
}

// ConfigsFor expands a device's limits into the stream configs it accepts.
// Adapters whose API cannot list formats use this to fill SupportedConfigs.
func ConfigsFor(d DeviceInfo, dir Direction, formats ...SampleFormat) []StreamConfig {
	if len(formats) == 0 {
		formats = []SampleFormat{F32}
	}

	var out []StreamConfig
	for _, rate := range SampleRates {
		for ch := 1; ch <= min(d.MaxChannels(dir), MaxChannels); ch++ {
			for _, f := range formats {
				modes := []bool{false}
				if d.Exclusive {
					modes = append(modes, true)
				}
				for _, excl := range modes {
					cfg := StreamConfig{SampleRate: rate, Channels: ch, Format: f, Exclusive: excl}
					if !d.Supports(cfg, dir) {
						continue
					}
					cfg.BufferFrames = BufferSizes(excl)[0]
					out = append(out, cfg)
				}
			}
		}
	}
	return out
}
