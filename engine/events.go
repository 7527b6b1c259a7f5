// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"
	"time"

	"github.com/ik5/audengine/audio"
)

// EventKind classifies what the UI is told about.
type EventKind int

const (
	EventError EventKind = iota
	EventWarning
	EventBackendFallback
	EventDeviceLost
	EventDeviceSwitched
	EventDeviceReconnected
	EventUnderrun
	EventOverrun
	EventPlaybackFinished
)

func (k EventKind) String() string {
	switch k {
	case EventError:
		return "error"
	case EventWarning:
		return "warning"
	case EventBackendFallback:
		return "backend fallback"
	case EventDeviceLost:
		return "device lost"
	case EventDeviceSwitched:
		return "device switched"
	case EventDeviceReconnected:
		return "device reconnected"
	case EventUnderrun:
		return "underrun"
	case EventOverrun:
		return "overrun"
	case EventPlaybackFinished:
		return "playback finished"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Action is a recovery the UI may offer next to an event.
type Action int

const (
	ActionRetry Action = iota
	ActionSelectDevice
	ActionSelectFile
	ActionCheckPermissions
	ActionResetSettings
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionSelectDevice:
		return "select different device"
	case ActionSelectFile:
		return "select different file"
	case ActionCheckPermissions:
		return "check permissions"
	case ActionResetSettings:
		return "reset settings"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Event is a structured notice for the UI. The engine does not render it.
type Event struct {
	Kind    EventKind
	Err     audio.Kind // KindUnknown when the event is not an error
	Title   string
	Message string
	Actions []Action
	At      time.Time
}

// EventQueueSize bounds the pending UI events; older ones win when full.
const EventQueueSize = 256

// actionsFor suggests recoveries for an error kind.
func actionsFor(k audio.Kind) []Action {
	switch k {
	case audio.DeviceNotFound, audio.DeviceUnavailable:
		return []Action{ActionSelectDevice, ActionRetry}
	case audio.StreamError, audio.InitializationFailed, audio.BackendNotAvailable:
		return []Action{ActionRetry, ActionCheckPermissions}
	case audio.UnsupportedFormat:
		return []Action{ActionResetSettings}
	case audio.IoError:
		return []Action{ActionCheckPermissions, ActionSelectFile}
	case audio.DecoderError:
		return []Action{ActionSelectFile}
	}
	return nil
}

func (m *Manager) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = m.now()
	}
	if !m.events.Push(ev) {
		m.logger.Debug("ui event dropped", "kind", ev.Kind, "title", ev.Title)
	}
}

// emitError reports err to the UI and returns it unchanged.
func (m *Manager) emitError(title string, err error) error {
	kind := audio.KindOf(err)
	m.emit(Event{
		Kind:    EventError,
		Err:     kind,
		Title:   title,
		Message: err.Error(),
		Actions: actionsFor(kind),
	})
	return err
}

// Events delivers UI events for select loops.
func (m *Manager) Events() <-chan Event { return m.events.C() }

// PollEvent returns the oldest pending UI event without blocking.
func (m *Manager) PollEvent() (Event, bool) { return m.events.Pop() }
