// SPDX-License-Identifier: EPL-2.0

package ringbuf

import "errors"

var (
	ErrCapacity = errors.New("ring must hold at least one frame")
	ErrChannels = errors.New("channel count must be positive")
)
