// SPDX-License-Identifier: EPL-2.0

package router

import "errors"

var (
	ErrUnknownSource      = errors.New("unknown source")
	ErrUnknownDestination = errors.New("unknown destination")
	ErrUnknownRoute       = errors.New("unknown route")
	ErrInvalidGain        = errors.New("gain must be finite and not negative")
	ErrChannels           = errors.New("channel count must be positive")
)
