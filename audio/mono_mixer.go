// SPDX-License-Identifier: EPL-2.0

package audio

import "fmt"

// MonoMixer averages the channels of src into a single channel.
type MonoMixer struct {
	src Source
	tmp []float32
}

func NewMonoMixer(src Source) *MonoMixer {
	return &MonoMixer{
		src: src,
		tmp: make([]float32, 4096),
	}
}

func (m *MonoMixer) SampleRate() int { return m.src.SampleRate() }
func (m *MonoMixer) Channels() int   { return 1 }
func (m *MonoMixer) BufSize() int    { return m.src.BufSize() }
func (m *MonoMixer) Close() error {
	if err := m.src.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}

	return nil
}

func (m *MonoMixer) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	channels := m.src.Channels()
	if channels == 1 {
		return m.src.ReadSamples(dst)
	}

	samplesNeeded := len(dst) * channels
	if cap(m.tmp) < samplesNeeded {
		m.tmp = make([]float32, max(samplesNeeded, 8192))
	}
	m.tmp = m.tmp[:samplesNeeded]

	n, err := m.src.ReadSamples(m.tmp)
	if n == 0 {
		return 0, err
	}

	return Downmix(dst, m.tmp[:n], channels), err
}

// Downmix averages interleaved src into mono dst and returns the number of
// frames written. It never allocates; dst must hold len(src)/channels values.
func Downmix(dst, src []float32, channels int) int {
	if channels <= 0 {
		return 0
	}
	frames := min(len(src)/channels, len(dst))

	switch channels {
	case 1:
		copy(dst, src[:frames])
	case 2:
		for f := range frames {
			idx := f << 1
			dst[f] = (src[idx] + src[idx+1]) * 0.5
		}
	case 4:
		for f := range frames {
			idx := f << 2
			dst[f] = (src[idx] + src[idx+1] + src[idx+2] + src[idx+3]) * 0.25
		}
	default:
		inv := float32(1.0) / float32(channels)
		for f := range frames {
			var sum float32
			base := f * channels
			for c := range channels {
				sum += src[base+c]
			}
			dst[f] = sum * inv
		}
	}

	return frames
}

// MapChannels copies frames of interleaved src (srcCh channels) into dst
// (dstCh channels), scaled by gain and added to what dst already holds.
// Mono is spread to every output channel, multi-channel into mono is
// averaged, anything else wraps channel indices.
func MapChannels(dst []float32, dstCh int, src []float32, srcCh int, frames int, gain float32) {
	switch {
	case srcCh == dstCh:
		n := frames * dstCh
		for i := range n {
			dst[i] += src[i] * gain
		}
	case srcCh == 1:
		for f := range frames {
			v := src[f] * gain
			base := f * dstCh
			for c := range dstCh {
				dst[base+c] += v
			}
		}
	case dstCh == 1:
		inv := gain / float32(srcCh)
		for f := range frames {
			var sum float32
			base := f * srcCh
			for c := range srcCh {
				sum += src[base+c]
			}
			dst[f] += sum * inv
		}
	default:
		for f := range frames {
			for c := range dstCh {
				dst[f*dstCh+c] += src[f*srcCh+c%srcCh] * gain
			}
		}
	}
}
