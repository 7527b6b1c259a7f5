// SPDX-License-Identifier: EPL-2.0

// Package portaudio adapts PortAudio to the backend contract. Devices on
// professional host APIs (JACK, ASIO, CoreAudio, WASAPI) are offered in
// exclusive low-latency mode; everything else runs with shared buffers.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/backend"
	"github.com/ik5/audengine/internal/eventq"
	"github.com/ik5/audengine/utils"
)

const idPrefix = "pa:"

var exclusiveHostAPIs = []portaudio.HostApiType{
	portaudio.JACK,
	portaudio.ASIO,
	portaudio.CoreAudio,
	portaudio.WASAPI,
}

type Backend struct {
	logger   *slog.Logger
	realTime bool
	events   *eventq.Queue[backend.Event]

	mu          sync.Mutex
	initialized bool
	streams     []*stream
}

var _ backend.Backend = (*Backend)(nil)

// New returns an uninitialised PortAudio backend. A nil logger uses
// slog.Default.
func New(logger *slog.Logger, realTime bool) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		logger:   logger.With("backend", backend.NativeExclusive.String()),
		realTime: realTime,
		events:   eventq.New[backend.Event](backend.EventQueueSize),
	}
}

func (b *Backend) Kind() backend.Kind { return backend.NativeExclusive }

// IsAvailable initialises the library and checks that at least one device
// exists.
func (b *Backend) IsAvailable() bool {
	if err := b.Initialize(); err != nil {
		return false
	}
	devices, err := portaudio.Devices()
	return err == nil && len(devices) > 0
}

func (b *Backend) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return audio.E(audio.InitializationFailed, "initialize portaudio", err)
	}
	b.initialized = true
	return nil
}

func deviceID(d *portaudio.DeviceInfo) string {
	return idPrefix + strconv.Itoa(d.Index)
}

func isExclusiveHost(d *portaudio.DeviceInfo) bool {
	return d.HostApi != nil && slices.Contains(exclusiveHostAPIs, d.HostApi.Type)
}

func describe(d *portaudio.DeviceInfo, def *portaudio.DeviceInfo) backend.DeviceInfo {
	host := ""
	if d.HostApi != nil {
		host = d.HostApi.Name
	}
	return backend.DeviceInfo{
		ID:                deviceID(d),
		Name:              d.Name,
		HostAPI:           host,
		IsDefault:         def != nil && def.Index == d.Index,
		MinSampleRate:     backend.SampleRates[0],
		MaxSampleRate:     backend.SampleRates[len(backend.SampleRates)-1],
		MaxInputChannels:  d.MaxInputChannels,
		MaxOutputChannels: d.MaxOutputChannels,
		Exclusive:         isExclusiveHost(d),
	}
}

func (b *Backend) Enumerate(dir backend.Direction) ([]backend.DeviceInfo, error) {
	if err := b.Initialize(); err != nil {
		return nil, err
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, audio.E(audio.DeviceUnavailable, "enumerate devices", err)
	}

	var def *portaudio.DeviceInfo
	if dir == backend.Input {
		def, _ = portaudio.DefaultInputDevice()
	} else {
		def, _ = portaudio.DefaultOutputDevice()
	}

	var out []backend.DeviceInfo
	for _, d := range devices {
		info := describe(d, def)
		if info.MaxChannels(dir) == 0 {
			continue
		}
		info.SupportedConfigs = b.probe(d, info, dir)
		out = append(out, info)
	}
	return out, nil
}

// probe filters the nominal configs through Pa_IsFormatSupported.
func (b *Backend) probe(d *portaudio.DeviceInfo, info backend.DeviceInfo, dir backend.Direction) []backend.StreamConfig {
	var out []backend.StreamConfig
	for _, cfg := range backend.ConfigsFor(info, dir, backend.F32, backend.I16, backend.I32) {
		if portaudio.IsFormatSupported(streamParams(d, dir, cfg), sampleType(cfg.Format)) == nil {
			out = append(out, cfg)
		}
	}
	return out
}

func (b *Backend) DefaultDevice(dir backend.Direction) (backend.DeviceInfo, error) {
	devices, err := b.Enumerate(dir)
	if err != nil {
		return backend.DeviceInfo{}, err
	}
	for _, d := range devices {
		if d.IsDefault {
			return d, nil
		}
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return backend.DeviceInfo{}, audio.Errorf(audio.DeviceNotFound, "default device", "no %s devices", dir)
}

func (b *Backend) SupportedConfigs(id string, dir backend.Direction) ([]backend.StreamConfig, error) {
	info, err := backend.FindDevice(b, dir, id)
	if err != nil {
		return nil, err
	}
	return info.SupportedConfigs, nil
}

func lookup(id string) (*portaudio.DeviceInfo, error) {
	idx, err := strconv.Atoi(strings.TrimPrefix(id, idPrefix))
	if err != nil || !strings.HasPrefix(id, idPrefix) {
		return nil, audio.Errorf(audio.DeviceNotFound, "lookup device", "%q", id)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, audio.E(audio.DeviceUnavailable, "lookup device", err)
	}
	for _, d := range devices {
		if d.Index == idx {
			return d, nil
		}
	}
	return nil, audio.Errorf(audio.DeviceNotFound, "lookup device", "%q", id)
}

func streamParams(d *portaudio.DeviceInfo, dir backend.Direction, cfg backend.StreamConfig) portaudio.StreamParameters {
	var p portaudio.StreamParameters
	if dir == backend.Input {
		if cfg.Exclusive {
			p = portaudio.LowLatencyParameters(d, nil)
		} else {
			p = portaudio.HighLatencyParameters(d, nil)
		}
		p.Input.Channels = cfg.Channels
	} else {
		if cfg.Exclusive {
			p = portaudio.LowLatencyParameters(nil, d)
		} else {
			p = portaudio.HighLatencyParameters(nil, d)
		}
		p.Output.Channels = cfg.Channels
	}
	p.SampleRate = float64(cfg.SampleRate)
	p.FramesPerBuffer = cfg.BufferFrames
	return p
}

// sampleType returns a zero-length buffer of the format's Go type, which is
// how IsFormatSupported learns the sample format.
func sampleType(f backend.SampleFormat) any {
	switch f {
	case backend.I16:
		return []int16(nil)
	case backend.I32:
		return []int32(nil)
	}
	return []float32(nil)
}

func (b *Backend) OpenOutput(id string, cfg backend.StreamConfig, cb backend.OutputCallback) (backend.Stream, error) {
	return b.open(id, backend.Output, cfg, cb, nil)
}

func (b *Backend) OpenInput(id string, cfg backend.StreamConfig, cb backend.InputCallback) (backend.Stream, error) {
	return b.open(id, backend.Input, cfg, nil, cb)
}

func (b *Backend) open(id string, dir backend.Direction, cfg backend.StreamConfig, out backend.OutputCallback, in backend.InputCallback) (backend.Stream, error) {
	op := "open " + dir.String()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	info, err := backend.FindDevice(b, dir, id)
	if err != nil {
		return nil, err
	}
	dev, err := lookup(info.ID)
	if err != nil {
		return nil, err
	}

	cfg, downgraded := backend.Negotiate(cfg, info.Exclusive)
	if downgraded {
		b.logger.Warn("exclusive mode not supported, using shared buffers",
			"device", info.Name, "host_api", info.HostAPI, "frames", cfg.BufferFrames)
		b.events.Push(backend.Event{Kind: backend.EventExclusiveDowngrade, Backend: b.Kind(), DeviceID: info.ID, At: time.Now()})
	}

	s := &stream{
		owner:   b,
		scratch: make([]float32, cfg.BlockSamples()),
		out:     out,
		in:      in,
	}

	params := streamParams(dev, dir, cfg)
	pa, err := portaudio.OpenStream(params, s.callback(dir, cfg.Format))
	if err != nil {
		return nil, audio.E(audio.DeviceUnavailable, op, fmt.Errorf("%s: %w", info.Name, err))
	}
	s.pa = pa

	latency := params.Output.Latency
	if dir == backend.Input {
		latency = params.Input.Latency
	}
	if si := pa.Info(); si != nil {
		if dir == backend.Input {
			latency = si.InputLatency
		} else {
			latency = si.OutputLatency
		}
	}

	s.StreamCore = backend.NewStreamCore(backend.CoreOptions{
		Backend:       b.Kind(),
		DeviceID:      info.ID,
		Direction:     dir,
		Config:        cfg,
		LatencyFrames: audio.DurationToFrames(latency, cfg.SampleRate) + cfg.BufferFrames,
		RealTime:      b.realTime,
		Events:        b.events,
		Hooks: backend.Hooks{
			Start: pa.Start,
			Stop:  pa.Stop,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.Watch(ctx, nil)

	b.mu.Lock()
	b.streams = append(b.streams, s)
	b.mu.Unlock()

	b.logger.Info("stream opened", "direction", dir, "device", info.Name, "config", cfg.String(),
		"latency", latency)
	return s, nil
}

func (b *Backend) PollEvent() (backend.Event, bool) { return b.events.Pop() }

func (b *Backend) Terminate() error {
	b.mu.Lock()
	streams := slices.Clone(b.streams)
	b.mu.Unlock()

	var errs []error
	for _, s := range streams {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		if err := portaudio.Terminate(); err != nil {
			errs = append(errs, err)
		}
		b.initialized = false
	}
	return errors.Join(errs...)
}

func (b *Backend) remove(s *stream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams = slices.DeleteFunc(b.streams, func(o *stream) bool { return o == s })
}

type stream struct {
	*backend.StreamCore

	owner   *Backend
	pa      *portaudio.Stream
	scratch []float32
	out     backend.OutputCallback
	in      backend.InputCallback
	cancel  context.CancelFunc

	closeOnce sync.Once
}

// callback builds the PortAudio callback for the device's sample type.
// Integer formats are converted through the preallocated scratch buffer.
func (s *stream) callback(dir backend.Direction, f backend.SampleFormat) any {
	if dir == backend.Input {
		switch f {
		case backend.I16:
			return func(in []int16) {
				n := utils.Int16sToFloats(s.scratch, in)
				s.Capture(s.scratch[:n], s.in)
			}
		case backend.I32:
			return func(in []int32) {
				n := utils.Int32sToFloats(s.scratch, in)
				s.Capture(s.scratch[:n], s.in)
			}
		}
		return func(in []float32) { s.Capture(in, s.in) }
	}

	switch f {
	case backend.I16:
		return func(out []int16) {
			buf := s.scratch[:min(len(out), len(s.scratch))]
			s.Render(buf, s.out)
			utils.FloatsToInt16(out, buf)
		}
	case backend.I32:
		return func(out []int32) {
			buf := s.scratch[:min(len(out), len(s.scratch))]
			s.Render(buf, s.out)
			utils.FloatsToInt32(out, buf)
		}
	}
	return func(out []float32) { s.Render(out, s.out) }
}

func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		stopErr := s.Stop()
		closeErr := s.pa.Close()
		s.owner.remove(s)
		if err = errors.Join(stopErr, closeErr); err != nil {
			err = audio.E(audio.StreamError, "close stream", err)
		}
	})
	return err
}
