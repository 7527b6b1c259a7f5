// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/backend"
	"github.com/ik5/audengine/router"
)

// run calls Tick twice per block until ctx is done.
func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	period := max(m.cfg.Stream.BlockDuration()/2, time.Millisecond)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	m.logger.Debug("scheduler started", "period", period)
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("scheduler stopped")
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick is one producer pass. Device events are handled first. Then the
// router runs until the output ring holds RingBlocks blocks, the analyser
// publishes a new spectrum and finished voices are reaped. With Options.Manual the
// caller must invoke it at least once per block; otherwise the scheduler
// goroutine does.
func (m *Manager) Tick() {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	m.handleBackendEvents()

	m.meter.Decay()
	m.produce()
	m.analyser.Update()

	m.reportTelemetry()
	m.reapFinished()
}

// produce runs the router without holding mu.
func (m *Manager) produce() {
	p := m.prod.Load()

	switch {
	case p.outBlock > 0:
		target := m.cfg.RingBlocks * p.outBlock
		for range m.cfg.RingBlocks {
			buffered := m.sink.ring.Buffered()
			if buffered+p.outBlock > target {
				return
			}
			// Wait for capture unless the device would starve meanwhile.
			if p.in != nil && p.in.Buffered() < p.outBlock && buffered >= p.outBlock {
				return
			}
			m.router.Process(p.outBlock)
		}

	case p.in != nil:
		for range 2 * m.cfg.RingBlocks {
			if p.in.Buffered() < p.inBlock {
				return
			}
			m.router.Process(p.inBlock)
		}
	}
}

func (m *Manager) handleBackendEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	for {
		ev, ok := m.backend.PollEvent()
		if !ok {
			return
		}
		m.handleBackendEventLocked(ev)
	}
}

func (m *Manager) handleBackendEventLocked(ev backend.Event) {
	logger := m.logger.With("device", ev.DeviceID, "event", ev.Kind.String())

	switch ev.Kind {
	case backend.EventDisconnected, backend.EventStreamError:
		switch {
		case m.out != nil && m.out.deviceID == ev.DeviceID:
			logger.Warn("output device lost", "error", ev.Err)
			m.emitLost("Output device lost", m.out.name, ev.Err)
			m.switchOutputLocked(ev)
		case m.in != nil && m.in.deviceID == ev.DeviceID:
			logger.Warn("input device lost", "error", ev.Err)
			m.emitLost("Input device lost", m.in.name, ev.Err)
			m.switchInputLocked(ev)
		default:
			logger.Debug("event for a device not in use")
		}

	case backend.EventReconnected:
		m.reconnectLocked(ev.DeviceID, logger)

	case backend.EventExclusiveDowngrade:
		logger.Warn("exclusive mode refused, running shared")
		m.emit(Event{
			Kind:    EventWarning,
			Err:     audio.UnsupportedFormat,
			Title:   "Exclusive mode unavailable",
			Message: fmt.Sprintf("%s is running in shared mode with higher latency", ev.DeviceID),
		})

	default:
		logger.Debug("unhandled backend event")
	}
}

func (m *Manager) emitLost(title, name string, cause error) {
	msg := name
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", name, cause)
	}
	m.emit(Event{
		Kind:    EventDeviceLost,
		Err:     audio.DeviceUnavailable,
		Title:   title,
		Message: msg,
		Actions: []Action{ActionSelectDevice, ActionRetry},
	})
}

// switchOutputLocked moves playback to the default output. A device that
// was lost (rather than failed) is remembered so it can be taken back when
// it reconnects.
func (m *Manager) switchOutputLocked(ev backend.Event) {
	lost := m.out.deviceID
	m.sink.open.Store(false)
	if err := m.out.stream.Close(); err != nil {
		m.logger.Debug("closing lost output", "error", err)
	}
	m.out = nil
	m.publishLocked()

	retry := ""
	if ev.Kind == backend.EventStreamError {
		retry = lost
	}
	if err := m.openOutputLocked(retry); err != nil {
		m.lostOutput = lost
		m.logger.Error("no output to switch to", "error", err)
		m.emitError("No output device available", err)
		return
	}
	if ev.Kind == backend.EventDisconnected {
		m.lostOutput = lost
	}

	m.switches.Add(1)
	m.emit(Event{
		Kind:    EventDeviceSwitched,
		Title:   "Output switched",
		Message: fmt.Sprintf("playing on %s", m.out.name),
	})
}

func (m *Manager) switchInputLocked(ev backend.Event) {
	lost := m.in.deviceID
	m.closeInputLocked()

	retry := ""
	if ev.Kind == backend.EventStreamError {
		retry = lost
	}
	if err := m.openInputLocked(retry); err != nil {
		m.lostInput = lost
		m.logger.Error("no input to switch to", "error", err)
		m.emitError("No input device available", err)
		return
	}
	if ev.Kind == backend.EventDisconnected {
		m.lostInput = lost
	}

	m.switches.Add(1)
	m.emit(Event{
		Kind:    EventDeviceSwitched,
		Title:   "Input switched",
		Message: fmt.Sprintf("recording from %s", m.in.name),
	})
}

// reconnectLocked goes back to a device the engine was using when it
// disappeared.
func (m *Manager) reconnectLocked(id string, logger *slog.Logger) {
	var err error
	switch id {
	case m.lostOutput:
		err = m.openOutputLocked(id)
	case m.lostInput:
		err = m.openInputLocked(id)
	default:
		return
	}
	if err != nil {
		m.emitError("Cannot reopen device", err)
		return
	}

	logger.Info("device reconnected")
	m.emit(Event{
		Kind:    EventDeviceReconnected,
		Title:   "Device reconnected",
		Message: id,
	})
}

func (m *Manager) reportTelemetry() {
	under, over := m.sink.ring.Underruns(), m.sink.ring.Overruns()

	if d := under - m.seenUnderruns; d > 0 {
		m.emit(Event{
			Kind:    EventUnderrun,
			Err:     audio.Underrun,
			Title:   "Output underrun",
			Message: fmt.Sprintf("%d block(s) played as silence", d),
		})
	}
	if d := over - m.seenOverruns; d > 0 {
		m.emit(Event{
			Kind:    EventOverrun,
			Err:     audio.Overrun,
			Title:   "Output overrun",
			Message: fmt.Sprintf("%d block(s) dropped", d),
		})
	}
	m.seenUnderruns, m.seenOverruns = under, over
}

// reapFinished detaches voices whose source ran out.
func (m *Manager) reapFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != nil && m.router.Finished(m.gen.id) {
		m.removeVoiceLocked(&m.gen)
		m.emit(Event{Kind: EventPlaybackFinished, Title: "Signal finished"})
	}
	if m.file != nil && m.router.Finished(m.file.id) {
		m.removeVoiceLocked(&m.file)
		m.fileSrc = nil
		m.emit(Event{Kind: EventPlaybackFinished, Title: "Playback finished"})
	}
}

// removeVoiceLocked detaches *v and clears it. Playback stops once no voice
// is left.
func (m *Manager) removeVoiceLocked(v **voice) {
	if *v == nil {
		return
	}
	if err := m.router.RemoveSource((*v).id); err != nil && !errors.Is(err, router.ErrUnknownSource) {
		m.logger.Warn("removing voice failed", "error", err)
	}
	*v = nil
	if m.gen == nil && m.file == nil {
		m.playback.Store(int32(PlaybackStopped))
	}
}
