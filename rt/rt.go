// SPDX-License-Identifier: EPL-2.0

// Package rt asks the OS for real-time treatment of the calling thread.
// Every request is best effort: missing privileges are reported in the
// Result and never fail the stream.
package rt

import (
	"strconv"
	"strings"
)

// DefaultPriority is the SCHED_FIFO priority requested for audio threads.
const DefaultPriority = 80

// Result describes what the OS granted.
type Result struct {
	Attempted bool
	RealTime  bool  // scheduling class changed to FIFO
	CPU       int   // pinned core, -1 when affinity was not set
	Err       error // first failure, if any
}

// Granted reports whether both the scheduling class and the affinity stuck.
func (r Result) Granted() bool { return r.RealTime && r.CPU >= 0 }

// ParseCPUList returns the first CPU named by a kernel cpulist string such as
// "2-3,7". It returns -1 when the list is empty or malformed.
func ParseCPUList(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return -1
	}

	first, _, _ := strings.Cut(s, ",")
	lo, _, _ := strings.Cut(first, "-")

	cpu, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil || cpu < 0 {
		return -1
	}
	return cpu
}

// pickCPU chooses the isolated core when the kernel reserved one, otherwise
// the last core, which the scheduler tends to load least.
func pickCPU(isolated string, numCPU int) int {
	if cpu := ParseCPUList(isolated); cpu >= 0 && cpu < numCPU {
		return cpu
	}
	return numCPU - 1
}
