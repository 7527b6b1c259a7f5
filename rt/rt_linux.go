// SPDX-License-Identifier: EPL-2.0

//go:build linux

package rt

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

const isolatedPath = "/sys/devices/system/cpu/isolated"

// PromoteCurrentThread locks the calling goroutine to its OS thread, switches
// the thread to SCHED_FIFO and pins it to an isolated core. The goroutine
// stays locked afterwards; callers own a dedicated callback goroutine.
func PromoteCurrentThread(priority int) Result {
	runtime.LockOSThread()

	res := Result{Attempted: true, CPU: -1}

	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		res.Err = fmt.Errorf("sched_setattr fifo %d: %w", priority, err)
	} else {
		res.RealTime = true
	}

	isolated, _ := os.ReadFile(isolatedPath)
	cpu := pickCPU(string(isolated), runtime.NumCPU())

	var set unix.CPUSet
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		if res.Err == nil {
			res.Err = fmt.Errorf("sched_setaffinity cpu %d: %w", cpu, err)
		}
	} else {
		res.CPU = cpu
	}

	return res
}
