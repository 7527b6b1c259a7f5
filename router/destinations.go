// SPDX-License-Identifier: EPL-2.0

package router

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/formats/wav"
	"github.com/ik5/audengine/ringbuf"
)

// RingDestination feeds a device callback through an SPSC ring. Process
// writes, Render reads.
type RingDestination struct {
	ring *ringbuf.Ring
}

// NewRingDestination buffers capacityFrames frames of the given width.
func NewRingDestination(channels, capacityFrames int) (*RingDestination, error) {
	ring, err := ringbuf.New(capacityFrames, channels)
	if err != nil {
		return nil, audio.E(audio.OutOfRange, "new ring destination", err)
	}
	return &RingDestination{ring: ring}, nil
}

func (d *RingDestination) Channels() int { return d.ring.Channels() }

// Write queues a block, dropping what does not fit.
func (d *RingDestination) Write(in []float32, frames int) {
	d.ring.WriteAll(in[:frames*d.ring.Channels()])
}

// Render is the device callback: it fills out from the ring and plays
// silence for anything missing.
func (d *RingDestination) Render(out []float32) { d.ring.ReadOrSilence(out) }

// Free is the number of frames Process can write without dropping.
func (d *RingDestination) Free() int { return d.ring.Free() }

func (d *RingDestination) Buffered() int     { return d.ring.Available() }
func (d *RingDestination) Underruns() uint64 { return d.ring.Underruns() }
func (d *RingDestination) Overruns() uint64  { return d.ring.Overruns() }

// Discard drops everything. It gives meters and taps a destination when no
// output is wanted.
type Discard struct{ channels int }

func NewDiscard(channels int) *Discard { return &Discard{channels: channels} }

func (d *Discard) Channels() int        { return d.channels }
func (d *Discard) Write([]float32, int) {}

// WAVDestination streams every block to a 32-bit float WAV file.
type WAVDestination struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex // guards w and f against Close
	f      *os.File
	w      *wav.FloatWriter
	failed atomic.Bool
	err    error
}

func NewWAVDestination(path string, sampleRate, channels int, logger *slog.Logger) (*WAVDestination, error) {
	const op = "new wav destination"

	f, err := os.Create(path)
	if err != nil {
		return nil, audio.E(audio.IoError, op, err)
	}
	w, err := wav.NewFloatWriter(f, sampleRate, channels)
	if err != nil {
		f.Close()
		return nil, audio.E(audio.IoError, op, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WAVDestination{path: path, logger: logger, f: f, w: w}, nil
}

func (d *WAVDestination) Channels() int { return d.w.Channels() }

// Write appends a block. After the first error the destination stops
// writing and Err reports it.
func (d *WAVDestination) Write(in []float32, frames int) {
	if d.failed.Load() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.w == nil {
		return
	}
	if err := d.w.Write(in[:frames*d.w.Channels()]); err != nil {
		d.err = audio.E(audio.IoError, "write wav destination", err)
		d.failed.Store(true)
		d.logger.Error("wav destination failed", "path", d.path, "error", err)
	}
}

// Frames written so far.
func (d *WAVDestination) Frames() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.w == nil {
		return 0
	}
	return d.w.Frames()
}

func (d *WAVDestination) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Close patches the header and closes the file. Remove the destination from
// the router first.
func (d *WAVDestination) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.w == nil {
		return d.err
	}
	werr := d.w.Close()
	ferr := d.f.Close()
	d.w, d.f = nil, nil

	switch {
	case werr != nil:
		return audio.E(audio.IoError, "close wav destination", werr)
	case ferr != nil:
		return audio.E(audio.IoError, "close wav destination", ferr)
	}
	return d.err
}
