// SPDX-License-Identifier: EPL-2.0

// Package ringbuf is a wait-free single-producer/single-consumer ring of
// interleaved float32 frames. It is the only thing shared between the
// router's producer goroutine and a device callback.
//
// Exactly one goroutine may call the writer methods (Write, WriteAll) and
// exactly one the reader methods (Read, ReadOrSilence). Everything else is a
// snapshot and safe from anywhere.
package ringbuf

import (
	"math/bits"
	"sync/atomic"
)

// cacheLine keeps the producer and consumer indices off each other's line.
const cacheLine = 64

// Ring holds a power-of-two number of frame slots. One slot always stays
// empty, so at most Cap() = slots-1 frames are buffered.
type Ring struct {
	buf      []float32
	channels int
	mask     uint64

	_     [cacheLine]byte
	write atomic.Uint64 // frame index in [0, slots)
	_     [cacheLine - 8]byte
	read  atomic.Uint64 // frame index in [0, slots)
	_     [cacheLine - 8]byte

	underruns atomic.Uint64
	overruns  atomic.Uint64
}

// New allocates a ring able to buffer at least frames frames of the given
// channel count. The slot count is rounded up to a power of two.
func New(frames, channels int) (*Ring, error) {
	if channels <= 0 {
		return nil, ErrChannels
	}
	if frames < 1 {
		return nil, ErrCapacity
	}

	// smallest power of two strictly greater than frames
	slots := uint64(1) << bits.Len64(uint64(frames))

	return &Ring{
		buf:      make([]float32, int(slots)*channels),
		channels: channels,
		mask:     slots - 1,
	}, nil
}

// Channels is the frame width.
func (r *Ring) Channels() int { return r.channels }

// Cap is the maximum number of frames the ring can hold.
func (r *Ring) Cap() int { return int(r.mask) }

// Available is the number of frames ready to read. Exact for the reader,
// an estimate for anyone else.
func (r *Ring) Available() int {
	w := r.write.Load()
	rd := r.read.Load()
	return int((w - rd) & r.mask)
}

// Free is the number of frames that can be written. Exact for the writer,
// an estimate for anyone else.
func (r *Ring) Free() int {
	return r.Cap() - r.Available()
}

// Write copies as many whole frames of src as fit and returns the number of
// samples written. It never blocks.
func (r *Ring) Write(src []float32) int {
	w := r.write.Load()
	rd := r.read.Load() // acquire: slots before rd are free

	free := r.mask - ((w - rd) & r.mask)
	frames := min(uint64(len(src)/r.channels), free)
	if frames == 0 {
		return 0
	}

	r.copyIn(w, src[:int(frames)*r.channels])
	r.write.Store((w + frames) & r.mask) // release: publishes the samples

	return int(frames) * r.channels
}

// WriteAll writes src and counts an overrun when the ring could not take all
// of it. The tail that did not fit is dropped.
func (r *Ring) WriteAll(src []float32) int {
	n := r.Write(src)
	if n < len(src)-len(src)%r.channels {
		r.overruns.Add(1)
	}
	return n
}

// Read copies up to len(dst) samples worth of whole frames and returns the
// number of samples read. It never blocks.
func (r *Ring) Read(dst []float32) int {
	rd := r.read.Load()
	w := r.write.Load() // acquire: slots before w hold data

	avail := (w - rd) & r.mask
	frames := min(uint64(len(dst)/r.channels), avail)
	if frames == 0 {
		return 0
	}

	r.copyOut(rd, dst[:int(frames)*r.channels])
	r.read.Store((rd + frames) & r.mask) // release: slots may be reused

	return int(frames) * r.channels
}

// ReadOrSilence fills dst completely. Missing frames are zeroed and counted
// as one underrun. It returns the number of real samples read.
func (r *Ring) ReadOrSilence(dst []float32) int {
	n := r.Read(dst)
	if n < len(dst) {
		clear(dst[n:])
		r.underruns.Add(1)
	}
	return n
}

// Underruns is the number of reads that came up short.
func (r *Ring) Underruns() uint64 { return r.underruns.Load() }

// Overruns is the number of writes that dropped samples.
func (r *Ring) Overruns() uint64 { return r.overruns.Load() }

// Reset empties the ring and clears the counters. Neither side may be
// running concurrently.
func (r *Ring) Reset() {
	r.read.Store(0)
	r.write.Store(0)
	r.underruns.Store(0)
	r.overruns.Store(0)
}

func (r *Ring) copyIn(at uint64, src []float32) {
	start := int(at) * r.channels
	n := copy(r.buf[start:], src)
	if n < len(src) {
		copy(r.buf, src[n:])
	}
}

func (r *Ring) copyOut(at uint64, dst []float32) {
	start := int(at) * r.channels
	n := copy(dst, r.buf[start:])
	if n < len(dst) {
		copy(dst[n:], r.buf)
	}
}
