// SPDX-License-Identifier: EPL-2.0

//go:build !linux

package rt

import (
	"errors"
	"runtime"
)

var errUnsupported = errors.New("real-time scheduling not supported on " + runtime.GOOS)

// PromoteCurrentThread only locks the goroutine to its thread on this
// platform; the OS scheduler is left alone.
func PromoteCurrentThread(int) Result {
	runtime.LockOSThread()
	return Result{Attempted: true, CPU: -1, Err: errUnsupported}
}
