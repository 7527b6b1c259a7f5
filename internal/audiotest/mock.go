// SPDX-License-Identifier: EPL-2.0

// Package audiotest holds deterministic sources and sinks for tests.
// Nothing here imports engine packages, so any package may use it.
package audiotest

import (
	"io"
	"math"
	"sync"
)

// MockSource generates a waveform on demand. It satisfies both the decoder
// contract (ReadSamples) and the router's pull contract (Fill).
type MockSource struct {
	sampleRate  int
	channels    int
	totalFrames int // <0 means endless
	generated   int
	waveform    func(frame int, channel int) float32
	closed      bool
}

// NewMockSource creates a source of totalFrames frames; a negative count never ends.
func NewMockSource(sampleRate, channels, totalFrames int, waveform func(frame int, channel int) float32) *MockSource {
	return &MockSource{
		sampleRate:  sampleRate,
		channels:    channels,
		totalFrames: totalFrames,
		waveform:    waveform,
	}
}

// NewSilentSource creates a mock source that generates silence (all zeros).
func NewSilentSource(sampleRate, channels, totalFrames int) *MockSource {
	return NewConstantSource(sampleRate, channels, totalFrames, 0)
}

// NewSineSource creates a mock source that generates a unit sine wave.
func NewSineSource(sampleRate, channels, totalFrames int, frequency float64) *MockSource {
	return NewScaledSineSource(sampleRate, channels, totalFrames, frequency, 1)
}

// NewScaledSineSource creates a sine source with the given linear amplitude.
func NewScaledSineSource(sampleRate, channels, totalFrames int, frequency, amplitude float64) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(frame int, _ int) float32 {
		t := float64(frame) / float64(sampleRate)
		return float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	})
}

// NewConstantSource creates a mock source with constant value.
func NewConstantSource(sampleRate, channels, totalFrames int, value float32) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(int, int) float32 {
		return value
	})
}

// NewRampSource emits frame index * step on every channel, handy for
// checking that nothing is skipped or repeated.
func NewRampSource(sampleRate, channels, totalFrames int, step float32) *MockSource {
	return NewMockSource(sampleRate, channels, totalFrames, func(frame int, _ int) float32 {
		return float32(frame) * step
	})
}

func (m *MockSource) SampleRate() int { return m.sampleRate }
func (m *MockSource) Channels() int   { return m.channels }
func (m *MockSource) BufSize() int    { return 4096 }
func (m *MockSource) Close() error    { m.closed = true; return nil }

// Closed reports whether Close was called.
func (m *MockSource) Closed() bool { return m.closed }

// Generated is the number of frames produced so far.
func (m *MockSource) Generated() int { return m.generated }

// Reset rewinds the generator.
func (m *MockSource) Reset() {
	m.generated = 0
}

func (m *MockSource) remaining(requested int) int {
	if m.totalFrames < 0 {
		return requested
	}
	return max(0, min(requested, m.totalFrames-m.generated))
}

func (m *MockSource) render(dst []float32, frames int) {
	for f := range frames {
		idx := m.generated + f
		for ch := range m.channels {
			dst[f*m.channels+ch] = m.waveform(idx, ch)
		}
	}
	m.generated += frames
}

func (m *MockSource) exhausted() bool {
	return m.totalFrames >= 0 && m.generated >= m.totalFrames
}

func (m *MockSource) ReadSamples(dst []float32) (int, error) {
	if m.exhausted() {
		return 0, io.EOF
	}

	frames := m.remaining(len(dst) / m.channels)
	m.render(dst, frames)

	if m.exhausted() {
		return frames * m.channels, io.EOF
	}
	return frames * m.channels, nil
}

// Fill implements the router pull contract. Unwritten frames are zeroed.
func (m *MockSource) Fill(out []float32, frames int) (int, bool) {
	n := m.remaining(frames)
	m.render(out, n)
	clear(out[n*m.channels : frames*m.channels])
	return n, m.exhausted()
}

// Sink records every block written to it. Safe for concurrent Write/Samples.
type Sink struct {
	channels int

	mu      sync.Mutex
	samples []float32
	writes  int
}

func NewSink(channels int) *Sink {
	return &Sink{channels: channels}
}

func (s *Sink) Channels() int { return s.channels }

func (s *Sink) Write(in []float32, frames int) {
	s.mu.Lock()
	s.samples = append(s.samples, in[:frames*s.channels]...)
	s.writes++
	s.mu.Unlock()
}

// Samples returns a copy of everything written so far.
func (s *Sink) Samples() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float32(nil), s.samples...)
}

// Writes is the number of Write calls.
func (s *Sink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Peak returns the largest absolute sample seen on channel ch.
func Peak(samples []float32, channels, ch int) float32 {
	var peak float32
	for i := ch; i < len(samples); i += channels {
		v := samples[i]
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}
