// SPDX-License-Identifier: EPL-2.0

package source

import (
	"fmt"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/backend"
	"github.com/ik5/audengine/ringbuf"
)

// Input is the tail of a capture stream. The device callback writes into
// its ring and the router drains it.
type Input struct {
	ring *ringbuf.Ring
	rate int
}

// NewInput buffers up to capacityFrames of captured audio.
func NewInput(sampleRate, channels, capacityFrames int) (*Input, error) {
	ring, err := ringbuf.New(capacityFrames, channels)
	if err != nil {
		return nil, audio.E(audio.InitializationFailed, "new input source", fmt.Errorf("%w", err))
	}
	return &Input{ring: ring, rate: sampleRate}, nil
}

func (i *Input) Channels() int   { return i.ring.Channels() }
func (i *Input) SampleRate() int { return i.rate }

// Callback is handed to Backend.OpenInput. Frames that do not fit are
// dropped and counted as overruns.
func (i *Input) Callback() backend.InputCallback {
	return func(in []float32) { i.ring.WriteAll(in) }
}

// Fill drains captured frames; a shortfall is zero-filled and counted as an
// underrun. An input never finishes.
func (i *Input) Fill(out []float32, frames int) (int, bool) {
	n := i.ring.ReadOrSilence(out[:frames*i.ring.Channels()])
	return n / i.ring.Channels(), false
}

// Buffered is the number of captured frames waiting to be pulled.
func (i *Input) Buffered() int { return i.ring.Available() }

func (i *Input) Underruns() uint64 { return i.ring.Underruns() }
func (i *Input) Overruns() uint64  { return i.ring.Overruns() }
