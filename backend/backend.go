// SPDX-License-Identifier: EPL-2.0

// Package backend defines the uniform contract every device layer adapter
// satisfies, plus the pieces adapters share: stream configuration, device
// descriptions, buffer-size negotiation and the stream status core.
//
// Adapters live in sub-packages: virtual (headless and tests), portaudio
// (professional host APIs, low latency) and oto (system mixer, and Web Audio
// when built for js/wasm).
package backend

import (
	"fmt"
	"strings"

	"github.com/ik5/audengine/audio"
)

// Kind names a family of device APIs.
type Kind int

const (
	NativeShared Kind = iota
	NativeExclusive
	BrowserGraph
	Virtual
)

var kindNames = [...]string{
	NativeShared:    "native-shared",
	NativeExclusive: "native-exclusive",
	BrowserGraph:    "browser-graph",
	Virtual:         "virtual",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("backend(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind accepts the names printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, audio.Errorf(audio.BackendNotAvailable, "parse backend", "unknown backend %q", s)
}

// Direction selects capture or playback devices.
type Direction int

const (
	Output Direction = iota
	Input
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// OutputCallback fills out with interleaved float32 samples. It runs on the
// device thread: no locks, no allocation, no logging.
type OutputCallback func(out []float32)

// InputCallback receives interleaved float32 samples captured by the device.
// The slice is only valid during the call.
type InputCallback func(in []float32)

// Stream is an open device stream. Play, Pause and Stop are synchronous and
// return within one block.
type Stream interface {
	Play() error
	Pause() error
	Stop() error
	Status() Status
	LatencyFrames() int
	Config() StreamConfig
	DeviceID() string
	// Close stops the stream and releases the device. Safe to call twice.
	Close() error
}

// Backend is a device layer.
type Backend interface {
	Kind() Kind
	IsAvailable() bool
	// Initialize is idempotent.
	Initialize() error
	Enumerate(dir Direction) ([]DeviceInfo, error)
	DefaultDevice(dir Direction) (DeviceInfo, error)
	SupportedConfigs(deviceID string, dir Direction) ([]StreamConfig, error)
	OpenOutput(deviceID string, cfg StreamConfig, cb OutputCallback) (Stream, error)
	OpenInput(deviceID string, cfg StreamConfig, cb InputCallback) (Stream, error)
	// PollEvent returns the oldest pending event without blocking.
	PollEvent() (Event, bool)
	// Terminate closes every stream and releases the API.
	Terminate() error
}

// FindDevice returns the device with id, or the default when id is empty.
func FindDevice(b Backend, dir Direction, id string) (DeviceInfo, error) {
	if id == "" {
		return b.DefaultDevice(dir)
	}

	devices, err := b.Enumerate(dir)
	if err != nil {
		return DeviceInfo{}, err
	}
	for _, d := range devices {
		if d.ID == id {
			return d, nil
		}
	}
	return DeviceInfo{}, audio.Errorf(audio.DeviceNotFound, "find device", "%s device %q", dir, id)
}
