// SPDX-License-Identifier: EPL-2.0

// Package meter tracks per-channel peak and RMS levels. Update runs on the
// producer goroutine once per block; readers take lock-free snapshots from
// any goroutine.
package meter

import (
	"math"
	"sync/atomic"
	"time"
)

const (
	// RMSAlpha weights the previous RMS against the current block.
	RMSAlpha = 0.99

	// ClipThreshold latches the clip flag.
	ClipThreshold = 0.99

	// DecayPerSecond is the factor applied to levels per second of
	// wall time, which is -60 dB/s.
	DecayPerSecond = 0.001

	// FloorDBFS is reported for silence.
	FloorDBFS = -160.0
)

// Level is a snapshot of one channel.
type Level struct {
	Peak    float32
	RMS     float32
	Clipped bool
}

func (l Level) PeakDBFS() float64 { return DBFS(l.Peak) }
func (l Level) RMSDBFS() float64  { return DBFS(l.RMS) }

// DBFS converts a linear level to dBFS, never below FloorDBFS.
func DBFS(v float32) float64 {
	if v <= 0 {
		return FloorDBFS
	}
	return max(20*math.Log10(float64(v)), FloorDBFS)
}

type channel struct {
	peak    atomic.Uint32 // float32 bits
	rms     atomic.Uint32 // float32 bits
	clipped atomic.Bool
	clips   atomic.Uint64
}

type Option func(*Meter)

// WithClock replaces time.Now for decay.
func WithClock(now func() time.Time) Option { return func(m *Meter) { m.now = now } }

// WithKernel forces a kernel by name ("avx2", "sse", "scalar").
func WithKernel(name string) Option {
	return func(m *Meter) {
		if k, ok := kernelByName(name, len(m.channels)); ok {
			m.kernel = k
		}
	}
}

type Meter struct {
	channels []channel
	now      func() time.Time
	kernel   kernel

	// producer scratch
	peak  []float32
	sumSq []float32

	lastDecay atomic.Int64 // unix nanoseconds, 0 before the first Decay
}

func New(channels int, opts ...Option) *Meter {
	channels = max(channels, 1)
	m := &Meter{
		channels: make([]channel, channels),
		now:      time.Now,
		kernel:   selectKernel(channels),
		peak:     make([]float32, channels),
		sumSq:    make([]float32, channels),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Meter) Channels() int { return len(m.channels) }

// Kernel names the block kernel in use.
func (m *Meter) Kernel() string { return m.kernel.name }

// Update folds frames of interleaved buf into the levels. It does not
// allocate or block. Only one goroutine may call it.
func (m *Meter) Update(buf []float32, frames int) {
	if frames <= 0 {
		return
	}
	ch := len(m.channels)

	clear(m.peak)
	clear(m.sumSq)
	m.kernel.fn(buf[:frames*ch], ch, m.peak, m.sumSq)

	inv := 1 / float32(frames)
	for c := range m.channels {
		st := &m.channels[c]
		p := m.peak[c]

		storeMax(&st.peak, p)
		updateRMS(&st.rms, m.sumSq[c]*inv)

		if p >= ClipThreshold {
			st.clipped.Store(true)
			st.clips.Add(1)
		}
	}
}

func storeMax(a *atomic.Uint32, v float32) {
	for {
		old := a.Load()
		if math.Float32frombits(old) >= v {
			return
		}
		if a.CompareAndSwap(old, math.Float32bits(v)) {
			return
		}
	}
}

func updateRMS(a *atomic.Uint32, meanSquare float32) {
	for {
		old := a.Load()
		prev := float64(math.Float32frombits(old))
		next := float32(math.Sqrt(prev*prev*RMSAlpha + float64(meanSquare)*(1-RMSAlpha)))
		if a.CompareAndSwap(old, math.Float32bits(next)) {
			return
		}
	}
}

func scale(a *atomic.Uint32, k float32) {
	for {
		old := a.Load()
		next := math.Float32frombits(old) * k
		if a.CompareAndSwap(old, math.Float32bits(next)) {
			return
		}
	}
}

// Decay releases stale levels by the wall time elapsed since the previous
// call. The first call only starts the clock.
func (m *Meter) Decay() {
	now := m.now().UnixNano()
	prev := m.lastDecay.Swap(now)
	if prev == 0 || now <= prev {
		return
	}

	dt := time.Duration(now - prev).Seconds()
	k := float32(math.Pow(DecayPerSecond, dt))
	for c := range m.channels {
		scale(&m.channels[c].peak, k)
		scale(&m.channels[c].rms, k)
	}
}

// Level returns a snapshot of channel ch. Out-of-range channels read as
// silence.
func (m *Meter) Level(ch int) Level {
	if ch < 0 || ch >= len(m.channels) {
		return Level{}
	}
	st := &m.channels[ch]
	return Level{
		Peak:    math.Float32frombits(st.peak.Load()),
		RMS:     math.Float32frombits(st.rms.Load()),
		Clipped: st.clipped.Load(),
	}
}

func (m *Meter) Levels() []Level {
	out := make([]Level, len(m.channels))
	for c := range out {
		out[c] = m.Level(c)
	}
	return out
}

// ClearClip resets the clip latch of channel ch, or of every channel when
// ch is negative.
func (m *Meter) ClearClip(ch int) {
	for c := range m.channels {
		if ch < 0 || c == ch {
			m.channels[c].clipped.Store(false)
		}
	}
}

// ClipEvents counts blocks that clipped, summed over channels.
func (m *Meter) ClipEvents() uint64 {
	var n uint64
	for c := range m.channels {
		n += m.channels[c].clips.Load()
	}
	return n
}

// Reset zeroes every level, latch and counter.
func (m *Meter) Reset() {
	for c := range m.channels {
		st := &m.channels[c]
		st.peak.Store(0)
		st.rms.Store(0)
		st.clipped.Store(false)
		st.clips.Store(0)
	}
	m.lastDecay.Store(0)
}
