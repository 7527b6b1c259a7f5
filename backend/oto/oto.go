// SPDX-License-Identifier: EPL-2.0

// Package oto adapts ebitengine/oto to the backend contract. On desktop
// systems it plays through the OS mixer; built for js/wasm it renders
// through a Web Audio graph and the "device" is a single virtual endpoint.
//
// oto allows one context per process and fixes its format at creation, so
// every stream opened through this package must share rate, channel count
// and sample format. Capture is not supported.
package oto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/backend"
	"github.com/ik5/audengine/internal/eventq"
	"github.com/ik5/audengine/utils"
)

const (
	DeviceID = "default"

	// MaxChannels is what oto can mix.
	MaxChannels = 2
)

var errNoCapture = errors.New("oto cannot capture audio")

// context state shared by every Backend in the process
var (
	ctxMu  sync.Mutex
	ctx    *oto.Context
	ctxCfg backend.StreamConfig
)

func sharedContext(cfg backend.StreamConfig) (*oto.Context, error) {
	ctxMu.Lock()
	defer ctxMu.Unlock()

	if ctx != nil {
		if ctxCfg.SampleRate != cfg.SampleRate || ctxCfg.Channels != cfg.Channels || ctxCfg.Format != cfg.Format {
			return nil, audio.Errorf(audio.UnsupportedFormat, "oto context",
				"running at %d Hz %dch %s", ctxCfg.SampleRate, ctxCfg.Channels, ctxCfg.Format)
		}
		return ctx, nil
	}

	format := oto.FormatFloat32LE
	if cfg.Format == backend.I16 {
		format = oto.FormatSignedInt16LE
	}

	c, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       format,
		BufferSize:   cfg.BlockDuration(),
	})
	if err != nil {
		return nil, audio.E(audio.InitializationFailed, "oto context", err)
	}
	<-ready

	ctx, ctxCfg = c, cfg
	return ctx, nil
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

func New(logger *slog.Logger, realTime bool) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		logger:   logger.With("backend", platformKind.String()),
		realTime: realTime,
		events:   eventq.New[backend.Event](backend.EventQueueSize),
	}
}

func (b *Backend) Kind() backend.Kind { return platformKind }
func (b *Backend) IsAvailable() bool  { return platformAvailable }

// Initialize only marks the backend ready. The oto context is created by
// the first OpenOutput, once the stream format is known.
func (b *Backend) Initialize() error {
	if !platformAvailable {
		return audio.E(audio.BackendNotAvailable, "initialize oto", nil)
	}
	b.mu.Lock()
	b.initialized = true
	b.mu.Unlock()
	return nil
}

func (b *Backend) device() backend.DeviceInfo {
	info := backend.DeviceInfo{
		ID:                DeviceID,
		Name:              platformDeviceName,
		HostAPI:           platformKind.String(),
		IsDefault:         true,
		MinSampleRate:     backend.SampleRates[0],
		MaxSampleRate:     backend.SampleRates[len(backend.SampleRates)-1],
		MaxOutputChannels: MaxChannels,
	}
	info.SupportedConfigs = backend.ConfigsFor(info, backend.Output, backend.F32, backend.I16)
	return info
}

func (b *Backend) Enumerate(dir backend.Direction) ([]backend.DeviceInfo, error) {
	if err := b.Initialize(); err != nil {
		return nil, err
	}
	if dir == backend.Input {
		return nil, nil
	}
	return []backend.DeviceInfo{b.device()}, nil
}

func (b *Backend) DefaultDevice(dir backend.Direction) (backend.DeviceInfo, error) {
	if dir == backend.Input {
		return backend.DeviceInfo{}, audio.E(audio.DeviceNotFound, "default input", errNoCapture)
	}
	if err := b.Initialize(); err != nil {
		return backend.DeviceInfo{}, err
	}
	return b.device(), nil
}

func (b *Backend) SupportedConfigs(id string, dir backend.Direction) ([]backend.StreamConfig, error) {
	info, err := backend.FindDevice(b, dir, id)
	if err != nil {
		return nil, err
	}
	return info.SupportedConfigs, nil
}

func (b *Backend) OpenInput(string, backend.StreamConfig, backend.InputCallback) (backend.Stream, error) {
	return nil, audio.E(audio.BackendNotAvailable, "open input", errNoCapture)
}

func (b *Backend) OpenOutput(id string, cfg backend.StreamConfig, cb backend.OutputCallback) (backend.Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	info, err := backend.FindDevice(b, backend.Output, id)
	if err != nil {
		return nil, err
	}
	if cfg.Format == backend.I32 {
		return nil, audio.Errorf(audio.UnsupportedFormat, "open output", "oto has no %s format", cfg.Format)
	}

	cfg, downgraded := backend.Negotiate(cfg, false)
	if downgraded {
		b.logger.Warn("exclusive mode not supported, using shared buffers", "frames", cfg.BufferFrames)
		b.events.Push(backend.Event{Kind: backend.EventExclusiveDowngrade, Backend: b.Kind(), DeviceID: info.ID, At: time.Now()})
	}
	if !info.Supports(cfg, backend.Output) {
		return nil, audio.Errorf(audio.UnsupportedFormat, "open output", "%s", cfg)
	}

	c, err := sharedContext(cfg)
	if err != nil {
		return nil, err
	}

	s := &stream{
		owner:   b,
		cb:      cb,
		format:  cfg.Format,
		scratch: make([]float32, 4*cfg.BlockSamples()),
	}
	s.player = c.NewPlayer(s)
	s.player.SetBufferSize(cfg.BlockSamples() * cfg.Format.BytesPerSample())

	s.StreamCore = backend.NewStreamCore(backend.CoreOptions{
		Backend:       b.Kind(),
		DeviceID:      info.ID,
		Direction:     backend.Output,
		Config:        cfg,
		LatencyFrames: 2 * cfg.BufferFrames,
		RealTime:      b.realTime,
		Events:        b.events,
		Hooks: backend.Hooks{
			Start: func() error { s.player.Play(); return nil },
			Stop:  func() error { s.player.Pause(); return nil },
		},
	})

	wctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.Watch(wctx, s.err)

	b.mu.Lock()
	b.streams = append(b.streams, s)
	b.mu.Unlock()

	b.logger.Info("stream opened", "device", info.Name, "config", cfg.String())
	return s, nil
}

func (b *Backend) PollEvent() (backend.Event, bool) { return b.events.Pop() }

func (b *Backend) Terminate() error {
	b.mu.Lock()
	streams := slices.Clone(b.streams)
	b.initialized = false
	b.mu.Unlock()

	var errs []error
	for _, s := range streams {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	ctxMu.Lock()
	defer ctxMu.Unlock()
	if ctx != nil {
		if err := ctx.Suspend(); err != nil {
			errs = append(errs, err)
		}
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
	player  *oto.Player
	cb      backend.OutputCallback
	format  backend.SampleFormat
	scratch []float32
	cancel  context.CancelFunc

	closeOnce sync.Once
}

// Read is oto's pull callback. It renders whole samples into p.
func (s *stream) Read(p []byte) (int, error) {
	width := s.format.BytesPerSample()
	n := min(len(p)/width, len(s.scratch))
	n -= n % s.Config().Channels
	if n == 0 {
		clear(p)
		return len(p), nil
	}

	buf := s.scratch[:n]
	s.Render(buf, s.cb)

	if s.format == backend.I16 {
		utils.PutInt16LE(p, buf)
	} else {
		utils.PutFloat32LE(p, buf)
	}
	return n * width, nil
}

func (s *stream) err() error {
	if err := s.player.Err(); err != nil {
		return fmt.Errorf("oto player: %w", err)
	}
	return nil
}

func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		stopErr := s.Stop()
		closeErr := s.player.Close()
		s.owner.remove(s)
		if err = errors.Join(stopErr, closeErr); err != nil {
			err = audio.E(audio.StreamError, "close stream", err)
		}
	})
	return err
}
