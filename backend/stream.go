// SPDX-License-Identifier: EPL-2.0

package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/internal/eventq"
	"github.com/ik5/audengine/rt"
)

// Status of a stream. Only the manager-facing goroutines change it; the
// device callback only loads it.
type Status int32

const (
	Stopped Status = iota
	Playing
	Paused
	Errored
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// StallBlocks is how many block periods a Playing stream may go without a
// callback before the watchdog declares it failed.
const StallBlocks = 8

// Hooks let an adapter start and stop the underlying device as the stream
// status changes. Nil hooks are skipped.
type Hooks struct {
	Start func() error
	Stop  func() error
}

// CoreOptions configures a StreamCore.
type CoreOptions struct {
	Backend       Kind
	DeviceID      string
	Direction     Direction
	Config        StreamConfig
	LatencyFrames int
	// RealTime requests FIFO scheduling and core pinning on the first callback.
	RealTime bool
	Events   *eventq.Queue[Event]
	Hooks    Hooks
}

// StreamCore implements the status machine and callback gating that every
// adapter shares. Adapters embed it and call Render or Capture from their
// device callback.
type StreamCore struct {
	opts CoreOptions

	mu     sync.Mutex // serialises Play/Pause/Stop/Fail
	status atomic.Int32

	callbacks atomic.Uint64

	promoteOnce atomic.Bool
	promoted    atomic.Bool
	rtResult    rt.Result // written once before promoted is set
}

func NewStreamCore(opts CoreOptions) *StreamCore {
	if opts.LatencyFrames == 0 {
		opts.LatencyFrames = opts.Config.BufferFrames
	}
	return &StreamCore{opts: opts}
}

func (s *StreamCore) Status() Status       { return Status(s.status.Load()) }
func (s *StreamCore) Config() StreamConfig { return s.opts.Config }
func (s *StreamCore) DeviceID() string     { return s.opts.DeviceID }
func (s *StreamCore) LatencyFrames() int   { return s.opts.LatencyFrames }
func (s *StreamCore) Direction() Direction { return s.opts.Direction }
func (s *StreamCore) Callbacks() uint64    { return s.callbacks.Load() }
func (s *StreamCore) BackendKind() Kind    { return s.opts.Backend }

func (s *StreamCore) setStatus(st Status) { s.status.Store(int32(st)) }

// RealTime reports the outcome of the first-callback promotion, once it has
// happened.
func (s *StreamCore) RealTime() (rt.Result, bool) {
	if !s.promoted.Load() {
		return rt.Result{}, false
	}
	return s.rtResult, true
}

func (s *StreamCore) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.Status() {
	case Playing:
		return nil
	case Errored:
		return audio.E(audio.StreamError, "play", errors.New("stream is errored"))
	case Stopped:
		if h := s.opts.Hooks.Start; h != nil {
			if err := h(); err != nil {
				return audio.E(audio.StreamError, "play", err)
			}
		}
	}

	s.setStatus(Playing)
	return nil
}

// Pause keeps the device running but makes the callback emit silence.
func (s *StreamCore) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.Status() {
	case Paused:
		return nil
	case Playing:
		s.setStatus(Paused)
		return nil
	case Errored:
		return audio.E(audio.StreamError, "pause", errors.New("stream is errored"))
	}
	return audio.E(audio.InvalidState, "pause", errors.New("stream is stopped"))
}

func (s *StreamCore) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.Status()
	if prev == Stopped {
		return nil
	}
	s.setStatus(Stopped)

	if h := s.opts.Hooks.Stop; h != nil && prev != Errored {
		if err := h(); err != nil {
			return audio.E(audio.StreamError, "stop", err)
		}
	}
	return nil
}

// Fail moves the stream to Errored and queues an event. From then on the
// callback only emits silence. Must not be called from the callback itself.
func (s *StreamCore) Fail(kind EventKind, err error) {
	s.mu.Lock()
	if s.Status() == Errored {
		s.mu.Unlock()
		return
	}
	s.setStatus(Errored)
	s.mu.Unlock()

	if s.opts.Events != nil {
		s.opts.Events.Push(Event{
			Kind:     kind,
			Backend:  s.opts.Backend,
			DeviceID: s.opts.DeviceID,
			Err:      err,
			At:       time.Now(),
		})
	}
}

func (s *StreamCore) enter() {
	s.callbacks.Add(1)
	if s.opts.RealTime && s.promoteOnce.CompareAndSwap(false, true) {
		s.rtResult = rt.PromoteCurrentThread(rt.DefaultPriority)
		s.promoted.Store(true)
	}
}

// Render is called from an output device callback. Unless the stream is
// Playing, out is zeroed and cb is not invoked.
func (s *StreamCore) Render(out []float32, cb OutputCallback) {
	s.enter()
	if s.Status() != Playing || cb == nil {
		clear(out)
		return
	}
	cb(out)
}

// Capture is called from an input device callback. Samples are delivered to
// cb only while the stream is Playing.
func (s *StreamCore) Capture(in []float32, cb InputCallback) {
	s.enter()
	if s.Status() != Playing || cb == nil {
		return
	}
	cb(in)
}

// Watch polls until ctx is done. A Playing stream whose callback count stops
// advancing for StallBlocks block periods, or for which check returns an
// error, is failed. check may be nil.
func (s *StreamCore) Watch(ctx context.Context, check func() error) {
	period := s.opts.Config.BlockDuration()
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	last := s.Callbacks()
	idle := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.Status() != Playing {
			idle = 0
			last = s.Callbacks()
			continue
		}

		if check != nil {
			if err := check(); err != nil {
				s.Fail(EventStreamError, err)
				return
			}
		}

		now := s.Callbacks()
		if now == last {
			idle++
		} else {
			idle = 0
		}
		last = now

		if idle >= StallBlocks {
			s.Fail(EventDisconnected, audio.E(audio.DeviceUnavailable, "watch stream",
				fmt.Errorf("no callback for %d blocks", idle)))
			return
		}
	}
}
