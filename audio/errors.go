// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDstSize = errors.New("dst size must be multiple of channels")
	ErrEmptyPCM       = errors.New("pcm buffer has no channels or sample rate")
)

// Kind classifies engine errors. Callers switch on the kind, never on the
// concrete error value.
type Kind int

const (
	KindUnknown Kind = iota
	DeviceNotFound
	DeviceUnavailable
	UnsupportedFormat
	StreamError
	InitializationFailed
	BackendNotAvailable
	InvalidState
	OutOfRange
	Underrun
	Overrun
	IoError
	DecoderError
)

var kindNames = [...]string{
	KindUnknown:          "unknown",
	DeviceNotFound:       "device not found",
	DeviceUnavailable:    "device unavailable",
	UnsupportedFormat:    "unsupported format",
	StreamError:          "stream error",
	InitializationFailed: "initialization failed",
	BackendNotAvailable:  "backend not available",
	InvalidState:         "invalid state",
	OutOfRange:           "out of range",
	Underrun:             "underrun",
	Overrun:              "overrun",
	IoError:              "i/o error",
	DecoderError:         "decoder error",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Telemetry reports whether the kind is a non-fatal event rather than a
// failure of the requested operation.
func (k Kind) Telemetry() bool {
	return k == Underrun || k == Overrun || k == OutOfRange
}

// Error is the tagged error surfaced by every fallible engine operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below can be used
// with errors.Is regardless of Op and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op) && t.Err == nil
}

var (
	ErrDeviceNotFound       = &Error{Kind: DeviceNotFound}
	ErrDeviceUnavailable    = &Error{Kind: DeviceUnavailable}
	ErrUnsupportedFormat    = &Error{Kind: UnsupportedFormat}
	ErrStream               = &Error{Kind: StreamError}
	ErrInitializationFailed = &Error{Kind: InitializationFailed}
	ErrBackendNotAvailable  = &Error{Kind: BackendNotAvailable}
	ErrInvalidState         = &Error{Kind: InvalidState}
	ErrOutOfRange           = &Error{Kind: OutOfRange}
	ErrUnderrun             = &Error{Kind: Underrun}
	ErrOverrun              = &Error{Kind: Overrun}
	ErrIO                   = &Error{Kind: IoError}
	ErrDecoder              = &Error{Kind: DecoderError}
)

// E builds a tagged error. A nil cause is allowed.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a tagged error with a formatted cause.
func Errorf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
