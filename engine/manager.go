// SPDX-License-Identifier: EPL-2.0

// Package engine is the façade a UI drives: it picks a device layer, owns
// the routing graph and runs the producer that keeps device buffers full.
//
// Three goroutines take part. Device callbacks only read the output ring
// and write the input ring. The producer (Tick, on the scheduler goroutine
// unless Options.Manual is set) handles device events, runs the router and
// updates the analyser. Everything else, the UI included, calls the
// exported methods, which are safe for concurrent use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ik5/audengine/analyser"
	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/backend"
	"github.com/ik5/audengine/config"
	"github.com/ik5/audengine/dsp"
	"github.com/ik5/audengine/internal/eventq"
	"github.com/ik5/audengine/meter"
	"github.com/ik5/audengine/recorder"
	"github.com/ik5/audengine/router"
	"github.com/ik5/audengine/rt"
	"github.com/ik5/audengine/source"
)

var (
	ErrNoOutput   = errors.New("no output device open")
	ErrNoBackends = errors.New("no backend could be initialised")
	ErrClosed     = errors.New("manager is closed")
)

type Options struct {
	// Config defaults to config.Default().
	Config *config.Config
	// Backends are the candidate device layers in order of preference.
	Backends []backend.Backend
	Logger   *slog.Logger
	// Manual leaves the producer to the caller, who must call Tick at
	// least once per block.
	Manual bool
	Now    func() time.Time
}

type output struct {
	stream   backend.Stream
	deviceID string
	name     string
}

type input struct {
	stream   backend.Stream
	src      *source.Input
	id       router.SourceID
	deviceID string
	name     string
}

// producer is what Tick needs to pace the router. It is replaced whenever
// a stream opens, closes or fails.
type producer struct {
	outBlock int           // frames per output callback, 0 without output
	in       *source.Input // nil unless a capture stream is running
	inBlock  int
}

// outputSink feeds the output ring while a stream is open and drops blocks
// otherwise, so a late device does not start with stale audio.
type outputSink struct {
	ring *router.RingDestination
	open atomic.Bool
}

func (o *outputSink) Channels() int { return o.ring.Channels() }

func (o *outputSink) Write(in []float32, frames int) {
	if o.open.Load() {
		o.ring.Write(in, frames)
	}
}

type Manager struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
	events *eventq.Queue[Event]

	backend backend.Backend

	router   *router.Router
	sink     *outputSink
	outDest  router.DestID
	recDest  router.DestID
	eq       *dsp.EQ
	volume   *dsp.Gain
	meter    *meter.Meter
	analyser *analyser.Analyser
	recorder *recorder.Recorder

	prod     atomic.Pointer[producer]
	playback atomic.Int32
	switches atomic.Uint64

	mu         sync.Mutex // guards the fields below and serialises control calls
	closed     bool
	out        *output
	in         *input
	lostOutput string // device to reopen when it comes back
	lostInput  string
	gen        *voice
	file       *voice
	fileSrc    *source.File
	monitor    router.RouteID

	tickMu        sync.Mutex // one producer at a time
	seenUnderruns uint64
	seenOverruns  uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// New selects a backend and builds the processing graph. No device is
// opened yet.
func New(opts Options) (*Manager, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	m := &Manager{
		cfg:    cfg,
		logger: logger.With("component", "engine"),
		now:    now,
		events: eventq.New[Event](EventQueueSize),
	}
	if err := m.selectBackend(opts.Backends); err != nil {
		return nil, err
	}
	if err := m.buildGraph(); err != nil {
		_ = m.backend.Terminate()
		return nil, err
	}

	if !opts.Manual {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.done = make(chan struct{})
		go m.run(ctx)
	}
	return m, nil
}

// selectBackend takes the first candidate that is available and
// initialises, reporting every one skipped on the way.
func (m *Manager) selectBackend(candidates []backend.Backend) error {
	var errs []error
	for _, b := range candidates {
		err := b.Initialize()
		if err == nil && !b.IsAvailable() {
			err = audio.E(audio.BackendNotAvailable, "initialize "+b.Kind().String(), nil)
		}
		if err != nil {
			errs = append(errs, err)
			m.logger.Warn("backend unavailable, falling back", "backend", b.Kind(), "error", err)
			m.emit(Event{
				Kind:    EventBackendFallback,
				Err:     audio.KindOf(err),
				Title:   "Audio backend unavailable",
				Message: fmt.Sprintf("%s: %v", b.Kind(), err),
			})
			continue
		}

		m.backend = b
		m.logger = m.logger.With("backend", b.Kind().String())
		m.logger.Info("backend selected", "skipped", len(errs))
		return nil
	}

	return audio.E(audio.BackendNotAvailable, "select backend", errors.Join(append([]error{ErrNoBackends}, errs...)...))
}

func (m *Manager) buildGraph() error {
	const op = "build graph"

	rate, ch := m.cfg.Stream.SampleRate, m.cfg.Stream.Channels
	maxBlock := max(m.cfg.Stream.BufferFrames, slices.Max(backend.SharedBufferSizes))

	m.router = router.New(router.WithLogger(m.logger), router.WithMaxFrames(maxBlock))
	m.eq = dsp.NewEQ(rate, ch,
		dsp.WithStrict(m.cfg.EQStrict),
		dsp.WithLogger(m.logger),
		dsp.WithAdjustHook(m.eqAdjusted))
	m.volume = dsp.NewGain(1, ch)
	m.meter = meter.New(ch, meter.WithClock(m.now))

	an, err := analyser.New(rate, ch, m.cfg.FFTSize, analyser.WithSmoothing(m.cfg.AnalyserSmoothing))
	if err != nil {
		return err
	}
	m.analyser = an

	ring, err := router.NewRingDestination(ch, 2*maxBlock*m.cfg.RingBlocks)
	if err != nil {
		return err
	}
	m.sink = &outputSink{ring: ring}
	m.outDest, err = m.router.AddDestination(m.sink,
		router.WithEffects(m.eq, m.volume),
		router.WithMeter(m.meter),
		router.WithTap(m.analyser),
	)
	if err != nil {
		return audio.E(audio.InitializationFailed, op, err)
	}

	m.recorder, err = recorder.New(recorder.Config{
		SampleRate:  rate,
		Channels:    m.cfg.RecorderChannels,
		MaxDuration: m.cfg.RecorderMaxDuration,
		Logger:      m.logger,
		Now:         m.now,
	})
	if err != nil {
		return err
	}
	if err := m.recorder.SetMonitoring(m.cfg.MonitorMode, m.cfg.MonitorGain); err != nil {
		return err
	}
	m.recDest, err = m.router.AddDestination(m.recorder)
	if err != nil {
		return audio.E(audio.InitializationFailed, op, err)
	}

	m.prod.Store(&producer{})
	return nil
}

// Close stops the producer, closes every stream and terminates the backend.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		<-m.done
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.out != nil {
		errs = append(errs, m.out.stream.Close())
		m.out = nil
	}
	if m.in != nil {
		errs = append(errs, m.in.stream.Close())
		m.in = nil
	}
	m.publishLocked()
	errs = append(errs, m.backend.Terminate())

	m.logger.Info("engine closed")
	return errors.Join(errs...)
}

func (m *Manager) checkOpenLocked(op string) error {
	if m.closed {
		return audio.E(audio.InvalidState, op, ErrClosed)
	}
	return nil
}

// publishLocked hands the producer a fresh view of the open streams.
func (m *Manager) publishLocked() {
	p := &producer{}
	if m.out != nil && m.out.stream.Status() != backend.Errored {
		p.outBlock = m.out.stream.Config().BufferFrames
	}
	if m.in != nil && m.in.stream.Status() == backend.Playing {
		p.in = m.in.src
		p.inBlock = m.in.stream.Config().BufferFrames
	}
	m.prod.Store(p)
}

// BackendKind names the device layer in use.
func (m *Manager) BackendKind() backend.Kind { return m.backend.Kind() }

// Devices lists the connected endpoints in one direction.
func (m *Manager) Devices(dir backend.Direction) ([]backend.DeviceInfo, error) {
	return m.backend.Enumerate(dir)
}

// OpenOutputDevice opens id, or the default output when id is empty, and
// starts it. A device already open is closed first.
func (m *Manager) OpenOutputDevice(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked("open output device"); err != nil {
		return err
	}
	if err := m.openOutputLocked(id); err != nil {
		return m.emitError("Cannot open output device", err)
	}
	return nil
}

func (m *Manager) openOutputLocked(id string) error {
	info, err := backend.FindDevice(m.backend, backend.Output, id)
	if err != nil {
		return err
	}

	if m.out != nil {
		if err := m.out.stream.Close(); err != nil {
			m.logger.Warn("closing output failed", "device", m.out.deviceID, "error", err)
		}
		m.out = nil
	}

	stream, err := m.backend.OpenOutput(info.ID, m.cfg.Stream, m.sink.ring.Render)
	if err != nil {
		m.publishLocked()
		return err
	}
	if err := stream.Play(); err != nil {
		_ = stream.Close()
		m.publishLocked()
		return err
	}

	m.out = &output{stream: stream, deviceID: info.ID, name: info.Name}
	m.lostOutput = ""
	m.sink.open.Store(true)
	m.publishLocked()

	m.logger.Info("output device opened", "device", info.ID, "name", info.Name, "config", stream.Config().String())
	return nil
}

// OpenInputDevice opens id, or the default input when id is empty, as the
// recording and monitoring source.
func (m *Manager) OpenInputDevice(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked("open input device"); err != nil {
		return err
	}
	if err := m.openInputLocked(id); err != nil {
		return m.emitError("Cannot open input device", err)
	}
	return nil
}

func (m *Manager) openInputLocked(id string) error {
	info, err := backend.FindDevice(m.backend, backend.Input, id)
	if err != nil {
		return err
	}
	m.closeInputLocked()

	cfg := m.cfg.Stream
	cfg.Channels = m.cfg.RecorderChannels
	src, err := source.NewInput(cfg.SampleRate, cfg.Channels, 2*m.router.MaxFrames()*m.cfg.RingBlocks)
	if err != nil {
		return err
	}

	stream, err := m.backend.OpenInput(info.ID, cfg, src.Callback())
	if err != nil {
		return err
	}
	srcID, err := m.router.AddSource(src)
	if err != nil {
		_ = stream.Close()
		return err
	}
	if _, err := m.router.CreateRoute(srcID, m.recDest, 1); err != nil {
		_ = m.router.RemoveSource(srcID)
		_ = stream.Close()
		return err
	}
	if err := stream.Play(); err != nil {
		_ = m.router.RemoveSource(srcID)
		_ = stream.Close()
		return err
	}

	m.in = &input{stream: stream, src: src, id: srcID, deviceID: info.ID, name: info.Name}
	m.lostInput = ""
	m.recorder.SetSourceTag(info.Name)
	if err := m.applyMonitorLocked(); err != nil {
		m.logger.Warn("monitoring not restored", "error", err)
	}
	m.publishLocked()

	m.logger.Info("input device opened", "device", info.ID, "name", info.Name, "config", stream.Config().String())
	return nil
}

func (m *Manager) closeInputLocked() {
	if m.in == nil {
		return
	}
	// RemoveSource also drops the recorder and monitor routes.
	if err := m.router.RemoveSource(m.in.id); err != nil {
		m.logger.Warn("removing input source failed", "error", err)
	}
	if err := m.in.stream.Close(); err != nil {
		m.logger.Warn("closing input failed", "device", m.in.deviceID, "error", err)
	}
	m.in = nil
	m.monitor = 0
	m.publishLocked()
}

// Stats is a snapshot of engine health.
type Stats struct {
	Backend         backend.Kind
	OutputDevice    string
	OutputStatus    backend.Status
	InputDevice     string
	InputStatus     backend.Status
	Playback        PlaybackState
	Recording       recorder.State
	Blocks          uint64 // router cycles
	GraphVersion    uint64
	OutputBuffered  int    // frames waiting in the output ring
	OutputUnderruns uint64 // device callbacks that found the ring short
	OutputOverruns  uint64 // producer blocks the ring could not take
	InputUnderruns  uint64
	InputOverruns   uint64
	DeviceSwitches  uint64
	DroppedEvents   uint64
	RealTime        rt.Result
	RealTimeKnown   bool
}

type realTimer interface {
	RealTime() (rt.Result, bool)
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Backend:         m.backend.Kind(),
		Playback:        m.PlaybackState(),
		Recording:       m.recorder.State(),
		Blocks:          m.router.Cycles(),
		GraphVersion:    m.router.Version(),
		OutputBuffered:  m.sink.ring.Buffered(),
		OutputUnderruns: m.sink.ring.Underruns(),
		OutputOverruns:  m.sink.ring.Overruns(),
		DeviceSwitches:  m.switches.Load(),
		DroppedEvents:   m.events.Dropped(),
	}
	if m.out != nil {
		s.OutputDevice = m.out.deviceID
		s.OutputStatus = m.out.stream.Status()
		if r, ok := m.out.stream.(realTimer); ok {
			s.RealTime, s.RealTimeKnown = r.RealTime()
		}
	}
	if m.in != nil {
		s.InputDevice = m.in.deviceID
		s.InputStatus = m.in.stream.Status()
		s.InputUnderruns = m.in.src.Underruns()
		s.InputOverruns = m.in.src.Overruns()
	}
	return s
}
