// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"errors"
	"time"

	"github.com/ik5/audengine/recorder"
	"github.com/ik5/audengine/router"
)

// StartRecording begins a take, opening the default input first when none
// is open.
func (m *Manager) StartRecording() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpenLocked("start recording"); err != nil {
		return err
	}
	if m.in == nil {
		if err := m.openInputLocked(""); err != nil {
			return m.emitError("Cannot open input device", err)
		}
	}
	return m.recorder.Start()
}

// StopRecording ends the take and returns it. The take is nil when no
// input arrived.
func (m *Manager) StopRecording() (*recorder.Take, error) { return m.StopRecordingAs("") }

// StopRecordingAs is StopRecording with a label for the take.
func (m *Manager) StopRecordingAs(label string) (*recorder.Take, error) {
	return m.recorder.Stop(label)
}

func (m *Manager) PauseRecording() error  { return m.recorder.Pause() }
func (m *Manager) ResumeRecording() error { return m.recorder.Resume() }

func (m *Manager) RecordingState() recorder.State { return m.recorder.State() }
func (m *Manager) Takes() []*recorder.Take        { return m.recorder.Takes() }

// RecordingElapsed is the time spent recording, pauses excluded.
func (m *Manager) RecordingElapsed() time.Duration { return m.recorder.Elapsed() }

// SaveRecording writes the last recording to path as "wav", "wav16" or
// "wav24".
func (m *Manager) SaveRecording(path, format string) error {
	if err := m.recorder.Save(path, format); err != nil {
		return m.emitError("Cannot save recording", err)
	}
	return nil
}

// SetMonitoringMode chooses how the input reaches the output. Gain is
// clamped to [0,1].
func (m *Manager) SetMonitoringMode(mode recorder.MonitorMode, gain float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.recorder.SetMonitoring(mode, gain); err != nil {
		return err
	}
	return m.applyMonitorLocked()
}

// applyMonitorLocked rebuilds the input to output route for the current
// monitoring mode.
func (m *Manager) applyMonitorLocked() error {
	if m.monitor != 0 {
		if err := m.router.RemoveRoute(m.monitor); err != nil && !errors.Is(err, router.ErrUnknownRoute) {
			return err
		}
		m.monitor = 0
	}
	if m.in == nil {
		return nil
	}

	mode, gain := m.recorder.Monitoring()
	var opts []router.RouteOption
	switch mode {
	case recorder.MonitorOff:
		return nil
	case recorder.MonitorDirect:
		opts = append(opts, router.PostEffects())
	}

	id, err := m.router.CreateRoute(m.in.id, m.outDest, gain, opts...)
	if err != nil {
		return err
	}
	m.monitor = id
	m.logger.Info("monitoring on", "mode", mode.String(), "gain", gain)
	return nil
}
