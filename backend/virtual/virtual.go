// SPDX-License-Identifier: EPL-2.0

// Package virtual is a device layer with no hardware behind it. Streams are
// driven by Pump, one block at a time, or by Run on a wall-clock ticker.
// Devices can be disconnected and reconnected at will, which makes hot-swap
// and failure paths reproducible in tests and headless runs.
package virtual

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/backend"
	"github.com/ik5/audengine/internal/eventq"
)

// Signal produces the sample captured on channel ch at the given frame.
type Signal func(frame, ch int) float32

// Tap observes every rendered output block. It runs on the pumping goroutine.
type Tap func(deviceID string, out []float32)

type Option func(*Backend)

// WithKind makes the backend report another kind, so selection and
// fallback logic can be exercised without hardware.
func WithKind(k backend.Kind) Option { return func(b *Backend) { b.kind = k } }

// WithUnavailable makes IsAvailable report false.
func WithUnavailable() Option { return func(b *Backend) { b.available = false } }

// WithInitError makes Initialize fail with err.
func WithInitError(err error) Option { return func(b *Backend) { b.initErr = err } }

// WithOutputs replaces the default output devices.
func WithOutputs(devices ...backend.DeviceInfo) Option {
	return func(b *Backend) { b.outputs = newDevices(devices) }
}

// WithInputs replaces the default input devices.
func WithInputs(devices ...backend.DeviceInfo) Option {
	return func(b *Backend) { b.inputs = newDevices(devices) }
}

// WithInputSignal sets what input streams capture. The default is silence.
func WithInputSignal(sig Signal) Option { return func(b *Backend) { b.signal = sig } }

// WithOutputTap registers an observer for rendered output.
func WithOutputTap(tap Tap) Option { return func(b *Backend) { b.tap = tap } }

// WithRealTime asks streams to promote the pumping thread on first callback.
func WithRealTime() Option { return func(b *Backend) { b.realTime = true } }

type device struct {
	info      backend.DeviceInfo
	connected bool
}

func newDevices(infos []backend.DeviceInfo) []*device {
	out := make([]*device, len(infos))
	for i, info := range infos {
		out[i] = &device{info: info, connected: true}
	}
	return out
}

// Device builds a virtual endpoint description.
func Device(id, name string, dir backend.Direction, channels int, isDefault bool) backend.DeviceInfo {
	info := backend.DeviceInfo{
		ID:            id,
		Name:          name,
		HostAPI:       "virtual",
		IsDefault:     isDefault,
		MinSampleRate: backend.SampleRates[0],
		MaxSampleRate: backend.SampleRates[len(backend.SampleRates)-1],
		Exclusive:     true,
	}
	if dir == backend.Input {
		info.MaxInputChannels = channels
	} else {
		info.MaxOutputChannels = channels
	}
	return info
}

type Backend struct {
	kind      backend.Kind
	available bool
	initErr   error
	signal    Signal
	tap       Tap
	realTime  bool

	events *eventq.Queue[backend.Event]

	mu          sync.Mutex
	initialized bool
	outputs     []*device
	inputs      []*device
	streams     []*stream
	pumpList    []*stream
}

var _ backend.Backend = (*Backend)(nil)

func New(opts ...Option) *Backend {
	b := &Backend{
		kind:      backend.Virtual,
		available: true,
		events:    eventq.New[backend.Event](backend.EventQueueSize),
		outputs: newDevices([]backend.DeviceInfo{
			Device("virtual-out-0", "Virtual Output 1", backend.Output, backend.MaxChannels, true),
			Device("virtual-out-1", "Virtual Output 2", backend.Output, backend.MaxChannels, false),
		}),
		inputs: newDevices([]backend.DeviceInfo{
			Device("virtual-in-0", "Virtual Input 1", backend.Input, 2, true),
		}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Kind() backend.Kind { return b.kind }
func (b *Backend) IsAvailable() bool  { return b.available }

func (b *Backend) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.available {
		return audio.E(audio.BackendNotAvailable, "initialize "+b.kind.String(), nil)
	}
	if b.initErr != nil {
		return audio.E(audio.InitializationFailed, "initialize "+b.kind.String(), b.initErr)
	}
	b.initialized = true
	return nil
}

func (b *Backend) devicesLocked(dir backend.Direction) []*device {
	if dir == backend.Input {
		return b.inputs
	}
	return b.outputs
}

func (b *Backend) Enumerate(dir backend.Direction) ([]backend.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil, audio.E(audio.InitializationFailed, "enumerate", errors.New("backend not initialized"))
	}

	var out []backend.DeviceInfo
	for _, d := range b.devicesLocked(dir) {
		if !d.connected {
			continue
		}
		info := d.info
		info.SupportedConfigs = backend.ConfigsFor(info, dir)
		out = append(out, info)
	}
	return out, nil
}

func (b *Backend) DefaultDevice(dir backend.Direction) (backend.DeviceInfo, error) {
	devices, err := b.Enumerate(dir)
	if err != nil {
		return backend.DeviceInfo{}, err
	}
	if len(devices) == 0 {
		return backend.DeviceInfo{}, audio.Errorf(audio.DeviceNotFound, "default device", "no %s devices", dir)
	}

	for _, d := range devices {
		if d.IsDefault {
			return d, nil
		}
	}
	return devices[0], nil
}

func (b *Backend) SupportedConfigs(deviceID string, dir backend.Direction) ([]backend.StreamConfig, error) {
	info, err := backend.FindDevice(b, dir, deviceID)
	if err != nil {
		return nil, err
	}
	return info.SupportedConfigs, nil
}

func (b *Backend) OpenOutput(deviceID string, cfg backend.StreamConfig, cb backend.OutputCallback) (backend.Stream, error) {
	return b.open(deviceID, backend.Output, cfg, cb, nil)
}

func (b *Backend) OpenInput(deviceID string, cfg backend.StreamConfig, cb backend.InputCallback) (backend.Stream, error) {
	return b.open(deviceID, backend.Input, cfg, nil, cb)
}

func (b *Backend) open(deviceID string, dir backend.Direction, cfg backend.StreamConfig, out backend.OutputCallback, in backend.InputCallback) (backend.Stream, error) {
	op := "open " + dir.String()

	info, err := backend.FindDevice(b, dir, deviceID)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg, downgraded := backend.Negotiate(cfg, info.Exclusive)
	if downgraded {
		b.events.Push(backend.Event{
			Kind:     backend.EventExclusiveDowngrade,
			Backend:  b.kind,
			DeviceID: info.ID,
			At:       time.Now(),
		})
	}
	if !info.Supports(cfg, dir) {
		return nil, audio.Errorf(audio.UnsupportedFormat, op, "%s on %s", cfg, info.ID)
	}

	s := &stream{
		owner: b,
		out:   out,
		in:    in,
		buf:   make([]float32, cfg.BlockSamples()),
	}
	s.StreamCore = backend.NewStreamCore(backend.CoreOptions{
		Backend:   b.kind,
		DeviceID:  info.ID,
		Direction: dir,
		Config:    cfg,
		RealTime:  b.realTime,
		Events:    b.events,
	})

	b.mu.Lock()
	b.streams = append(b.streams, s)
	b.mu.Unlock()

	return s, nil
}

func (b *Backend) PollEvent() (backend.Event, bool) { return b.events.Pop() }

func (b *Backend) Terminate() error {
	b.mu.Lock()
	streams := slices.Clone(b.streams)
	b.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}

	b.mu.Lock()
	b.initialized = false
	b.mu.Unlock()
	return nil
}

// Pump runs blocks callbacks on every open stream, in open order.
func (b *Backend) Pump(blocks int) {
	for range blocks {
		b.mu.Lock()
		b.pumpList = append(b.pumpList[:0], b.streams...)
		b.mu.Unlock()

		for _, s := range b.pumpList {
			s.tick()
		}
	}
}

// Run pumps one block per interval until ctx is done.
func (b *Backend) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Pump(1)
		}
	}
}

// Streams is the number of open streams.
func (b *Backend) Streams() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streams)
}

// Disconnect removes a device from enumeration and fails its streams.
func (b *Backend) Disconnect(deviceID string) error {
	b.mu.Lock()
	d := b.findLocked(deviceID)
	if d == nil {
		b.mu.Unlock()
		return audio.Errorf(audio.DeviceNotFound, "disconnect", "%q", deviceID)
	}
	d.connected = false

	var affected []*stream
	for _, s := range b.streams {
		if s.DeviceID() == deviceID {
			affected = append(affected, s)
		}
	}
	b.mu.Unlock()

	cause := audio.E(audio.DeviceUnavailable, "device lost", fmt.Errorf("%s disconnected", deviceID))
	for _, s := range affected {
		s.Fail(backend.EventDisconnected, cause)
	}
	if len(affected) == 0 {
		b.events.Push(backend.Event{Kind: backend.EventDisconnected, Backend: b.kind, DeviceID: deviceID, Err: cause, At: time.Now()})
	}
	return nil
}

// Reconnect brings a disconnected device back.
func (b *Backend) Reconnect(deviceID string) error {
	b.mu.Lock()
	d := b.findLocked(deviceID)
	if d == nil {
		b.mu.Unlock()
		return audio.Errorf(audio.DeviceNotFound, "reconnect", "%q", deviceID)
	}
	d.connected = true
	b.mu.Unlock()

	b.events.Push(backend.Event{Kind: backend.EventReconnected, Backend: b.kind, DeviceID: deviceID, At: time.Now()})
	return nil
}

func (b *Backend) findLocked(id string) *device {
	for _, list := range [][]*device{b.outputs, b.inputs} {
		for _, d := range list {
			if d.info.ID == id {
				return d
			}
		}
	}
	return nil
}

func (b *Backend) remove(s *stream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams = slices.DeleteFunc(b.streams, func(o *stream) bool { return o == s })
}

type stream struct {
	*backend.StreamCore

	owner *Backend
	out   backend.OutputCallback
	in    backend.InputCallback
	buf   []float32
	frame int

	closeOnce sync.Once
}

func (s *stream) tick() {
	if s.Direction() == backend.Input {
		s.captureBlock()
		return
	}

	s.Render(s.buf, s.out)
	if tap := s.owner.tap; tap != nil {
		tap(s.DeviceID(), s.buf)
	}
}

func (s *stream) captureBlock() {
	channels := s.Config().Channels
	frames := len(s.buf) / channels

	if sig := s.owner.signal; sig != nil {
		for f := range frames {
			for c := range channels {
				s.buf[f*channels+c] = sig(s.frame+f, c)
			}
		}
	} else {
		clear(s.buf)
	}
	s.frame += frames

	s.Capture(s.buf, s.in)
}

func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.Stop()
		s.owner.remove(s)
	})
	return err
}
