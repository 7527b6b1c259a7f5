// SPDX-License-Identifier: EPL-2.0

package backend

import (
	"fmt"
	"time"
)

type EventKind int

const (
	// EventDisconnected means a device vanished; its streams are Errored.
	EventDisconnected EventKind = iota
	// EventReconnected means a previously lost device is back.
	EventReconnected
	// EventStreamError means a stream failed for another reason.
	EventStreamError
	// EventExclusiveDowngrade means an exclusive request was served shared.
	EventExclusiveDowngrade
)

func (k EventKind) String() string {
	switch k {
	case EventDisconnected:
		return "disconnected"
	case EventReconnected:
		return "reconnected"
	case EventStreamError:
		return "stream error"
	case EventExclusiveDowngrade:
		return "exclusive downgrade"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is queued by adapters and drained by the manager on its tick.
type Event struct {
	Kind     EventKind
	Backend  Kind
	DeviceID string
	Err      error
	At       time.Time
}

// EventQueueSize bounds each adapter's pending events.
const EventQueueSize = 64
