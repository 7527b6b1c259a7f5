// SPDX-License-Identifier: EPL-2.0

// Package analyser turns the post-effect signal into a magnitude and phase
// spectrum for display.
//
// The producer taps blocks in with Write, which only copies into a ring.
// Update runs the FFT on the caller's goroutine and publishes an immutable
// Snapshot, so readers never wait on the audio path.
package analyser

import (
	"math"
	"math/bits"
	"math/cmplx"
	"sync"
	"sync/atomic"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/ringbuf"
)

const (
	DefaultSize      = 2048
	MinSize          = 256
	MaxSize          = 32768
	DefaultSmoothing = 0.5

	// FloorDBFS is reported for empty bins.
	FloorDBFS = -160.0

	// tapBlocks is how many FFT frames the tap ring holds between updates.
	tapBlocks = 4
	monoChunk = 1024
)

// Snapshot is one published spectrum. It is never modified after
// publication.
type Snapshot struct {
	Magnitudes []float32 // dBFS per bin, size/2 bins
	Phases     []float32 // radians per bin
	SampleRate int
	Size       int
	Seq        uint64
}

// BinFrequency is the centre frequency of bin k in Hz.
func (s *Snapshot) BinFrequency(k int) float64 {
	return float64(k) * float64(s.SampleRate) / float64(s.Size)
}

// PeakBin is the loudest bin above DC, or 0 for an empty snapshot.
func (s *Snapshot) PeakBin() int {
	peak := 0
	for k := 1; k < len(s.Magnitudes); k++ {
		if peak == 0 || s.Magnitudes[k] > s.Magnitudes[peak] {
			peak = k
		}
	}
	return peak
}

type Option func(*Analyser)

// WithSmoothing sets the initial per-bin smoothing factor.
func WithSmoothing(tau float64) Option {
	return func(a *Analyser) { a.smoothing.Store(math.Float64bits(clampUnit(tau))) }
}

type Analyser struct {
	size     int
	rate     int
	channels int
	window   []float64
	norm     float64 // amplitude scale, 2/sum(window)

	// producer side
	tap  *ringbuf.Ring
	mono []float32

	smoothing atomic.Uint64 // float64 bits
	snap      atomic.Pointer[Snapshot]

	mu     sync.Mutex // serialises Update and Reset
	chunk  []float32
	hist   []float32 // circular history of the last size samples
	pos    int
	input  []float64
	smooth []float64 // smoothed linear magnitudes
	seq    uint64
}

// ValidSize reports whether n is a supported FFT size.
func ValidSize(n int) bool {
	return n >= MinSize && n <= MaxSize && bits.OnesCount(uint(n)) == 1
}

// New builds an analyser for blocks of the given channel count. size must be
// a power of two in [MinSize, MaxSize].
func New(sampleRate, channels, size int, opts ...Option) (*Analyser, error) {
	if !ValidSize(size) {
		return nil, audio.Errorf(audio.OutOfRange, "new analyser", "fft size %d", size)
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, audio.Errorf(audio.OutOfRange, "new analyser", "%d Hz, %d channels", sampleRate, channels)
	}

	tap, err := ringbuf.New(size*tapBlocks, 1)
	if err != nil {
		return nil, audio.E(audio.InitializationFailed, "new analyser", err)
	}

	w := window.Hann(size)
	var sum float64
	for _, v := range w {
		sum += v
	}

	a := &Analyser{
		size:     size,
		rate:     sampleRate,
		channels: channels,
		window:   w,
		norm:     2 / sum,
		tap:      tap,
		mono:     make([]float32, monoChunk),
		chunk:    make([]float32, monoChunk),
		hist:     make([]float32, size),
		input:    make([]float64, size),
		smooth:   make([]float64, size/2),
	}
	a.smoothing.Store(math.Float64bits(DefaultSmoothing))
	for _, opt := range opts {
		opt(a)
	}
	a.snap.Store(a.empty())
	return a, nil
}

func (a *Analyser) Size() int       { return a.size }
func (a *Analyser) Bins() int       { return a.size / 2 }
func (a *Analyser) SampleRate() int { return a.rate }
func (a *Analyser) Channels() int   { return a.channels }

func (a *Analyser) empty() *Snapshot {
	s := &Snapshot{
		Magnitudes: make([]float32, a.size/2),
		Phases:     make([]float32, a.size/2),
		SampleRate: a.rate,
		Size:       a.size,
	}
	for k := range s.Magnitudes {
		s.Magnitudes[k] = FloorDBFS
	}
	return s
}

// SetSmoothing changes the per-bin smoothing factor, tau in [0,1].
func (a *Analyser) SetSmoothing(tau float64) error {
	if math.IsNaN(tau) || tau < 0 || tau > 1 {
		return audio.Errorf(audio.OutOfRange, "set analyser smoothing", "%v", tau)
	}
	a.smoothing.Store(math.Float64bits(tau))
	return nil
}

func (a *Analyser) Smoothing() float64 { return math.Float64frombits(a.smoothing.Load()) }

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultSmoothing
	}
	return min(max(v, 0), 1)
}

// Write taps frames of interleaved buf, downmixed to mono. It is called by
// the producer, never blocks and never allocates. When Update falls behind
// the newest samples are dropped.
func (a *Analyser) Write(buf []float32, frames int) {
	for off := 0; off < frames; off += len(a.mono) {
		n := min(len(a.mono), frames-off)
		audio.Downmix(a.mono[:n], buf[off*a.channels:(off+n)*a.channels], a.channels)
		a.tap.WriteAll(a.mono[:n])
	}
}

// Update drains the tap, transforms the latest size samples and publishes a
// new snapshot. It reports whether anything new arrived.
func (a *Analyser) Update() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	fresh := false
	for {
		n := a.tap.Read(a.chunk)
		if n == 0 {
			break
		}
		fresh = true
		for _, v := range a.chunk[:n] {
			a.hist[a.pos] = v
			a.pos = (a.pos + 1) & (a.size - 1)
		}
	}
	if !fresh {
		return false
	}

	for i := range a.input {
		a.input[i] = float64(a.hist[(a.pos+i)&(a.size-1)]) * a.window[i]
	}
	spectrum := fft.FFTReal(a.input)

	tau := a.Smoothing()
	a.seq++
	s := &Snapshot{
		Magnitudes: make([]float32, a.size/2),
		Phases:     make([]float32, a.size/2),
		SampleRate: a.rate,
		Size:       a.size,
		Seq:        a.seq,
	}
	for k := range s.Magnitudes {
		mag := cmplx.Abs(spectrum[k]) * a.norm
		a.smooth[k] = tau*a.smooth[k] + (1-tau)*mag
		s.Magnitudes[k] = float32(dbfs(a.smooth[k]))
		s.Phases[k] = float32(cmplx.Phase(spectrum[k]))
	}
	a.snap.Store(s)
	return true
}

func dbfs(v float64) float64 {
	if v <= 0 {
		return FloorDBFS
	}
	return max(20*math.Log10(v), FloorDBFS)
}

// Snapshot returns the latest published spectrum.
func (a *Analyser) Snapshot() *Snapshot { return a.snap.Load() }

// FrequencyData is a copy of the latest magnitudes in dBFS.
func (a *Analyser) FrequencyData() []float32 {
	s := a.snap.Load()
	return append([]float32(nil), s.Magnitudes...)
}

// Reset forgets history and smoothing. The tap is drained, not cleared, so
// it stays safe against a concurrent Write.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for a.tap.Read(a.chunk) > 0 {
	}
	clear(a.hist)
	clear(a.smooth)
	a.pos = 0
	a.snap.Store(a.empty())
}
