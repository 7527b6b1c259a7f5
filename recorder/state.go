// SPDX-License-Identifier: EPL-2.0

package recorder

import (
	"fmt"
	"strings"

	"github.com/ik5/audengine/audio"
)

type State int32

const (
	Idle State = iota
	Recording
	Paused
	Stopped
)

var stateNames = [...]string{
	Idle:      "idle",
	Recording: "recording",
	Paused:    "paused",
	Stopped:   "stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MonitorMode selects how live input reaches the output while recording.
type MonitorMode int32

const (
	MonitorOff MonitorMode = iota
	// MonitorDirect bypasses the effect chain.
	MonitorDirect
	// MonitorRouted goes through the EQ like any other source.
	MonitorRouted
)

var monitorNames = [...]string{
	MonitorOff:    "off",
	MonitorDirect: "direct",
	MonitorRouted: "routed",
}

func (m MonitorMode) String() string {
	if m < 0 || int(m) >= len(monitorNames) {
		return fmt.Sprintf("monitor(%d)", int(m))
	}
	return monitorNames[m]
}

func ParseMonitorMode(s string) (MonitorMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range monitorNames {
		if name == s {
			return MonitorMode(i), nil
		}
	}
	return MonitorOff, audio.Errorf(audio.OutOfRange, "parse monitor mode", "%q", s)
}
