// SPDX-License-Identifier: EPL-2.0

package audengine

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/oov/audio/resampler"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/formats/aiff"
	"github.com/ik5/audengine/formats/mp3"
	"github.com/ik5/audengine/formats/vorbis"
	"github.com/ik5/audengine/formats/wav"
)

// ResampleQuality is the oov/audio quality level, 0 (fast) to 10 (best).
const ResampleQuality = 10

var registry = sync.OnceValue(func() *audio.Registry {
	r := audio.NewRegistry()
	r.Register("wav", wav.Decoder{})
	r.Register("wave", wav.Decoder{})
	r.Register("mp3", mp3.Decoder{})
	r.Register("ogg", vorbis.Decoder{})
	r.Register("oga", vorbis.Decoder{})
	r.Register("aiff", aiff.Decoder{})
	r.Register("aif", aiff.Decoder{})
	return r
})

// Registry returns the decoders LoadFile and Decode consult.
func Registry() *audio.Registry { return registry() }

type loadOptions struct {
	rate int
	mono bool
}

type LoadOption func(*loadOptions)

// WithSampleRate converts the decoded audio to rate. Zero keeps the file's
// own rate.
func WithSampleRate(rate int) LoadOption { return func(o *loadOptions) { o.rate = rate } }

// WithMono averages all channels into one.
func WithMono() LoadOption { return func(o *loadOptions) { o.mono = true } }

// LoadFile decodes the file at path, choosing the decoder by extension.
func LoadFile(path string, opts ...LoadOption) (*audio.PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, audio.E(audio.IoError, "load file", err)
	}
	defer f.Close()

	return Decode(f, filepath.Ext(path), opts...)
}

// Decode reads a whole stream in the given format ("wav", ".mp3", ...).
func Decode(r io.Reader, format string, opts ...LoadOption) (*audio.PCM, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	dec, ok := Registry().Get(format)
	if !ok {
		return nil, audio.Errorf(audio.UnsupportedFormat, "decode", "no decoder for %q", format)
	}

	src, err := dec.Decode(r)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if o.mono {
		src = audio.NewMonoMixer(src)
	}

	pcm, err := audio.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if o.rate > 0 && o.rate != pcm.SampleRate {
		return Resample(pcm, o.rate)
	}
	return pcm, nil
}

// Resample converts pcm to rate. The result has the same channel count and
// round(frames*rate/pcm.SampleRate) frames.
func Resample(pcm *audio.PCM, rate int) (*audio.PCM, error) {
	if err := pcm.Validate(); err != nil {
		return nil, audio.E(audio.DecoderError, "resample", err)
	}
	if rate <= 0 {
		return nil, audio.Errorf(audio.OutOfRange, "resample", "sample rate %d", rate)
	}
	if rate == pcm.SampleRate {
		return pcm, nil
	}

	ch := pcm.Channels
	inFrames := pcm.Frames()
	outFrames := int((int64(inFrames)*int64(rate) + int64(pcm.SampleRate)/2) / int64(pcm.SampleRate))

	r := resampler.New(ch, pcm.SampleRate, rate, ResampleQuality)
	planeIn := make([]float32, inFrames)
	planeOut := make([]float32, outFrames)
	out := &audio.PCM{
		Samples:    make([]float32, outFrames*ch),
		SampleRate: rate,
		Channels:   ch,
	}

	for c := range ch {
		for f := range inFrames {
			planeIn[f] = pcm.Samples[f*ch+c]
		}

		written, err := resampleChannel(r, c, planeIn, planeOut)
		if err != nil {
			return nil, err
		}
		clear(planeOut[written:])

		for f := range outFrames {
			out.Samples[f*ch+c] = planeOut[f]
		}
	}
	return out, nil
}

// resampleChannel feeds in through the resampler until it is consumed or
// out is full.
func resampleChannel(r *resampler.Resampler, c int, in, out []float32) (int, error) {
	written := 0
	for len(in) > 0 && written < len(out) {
		read, n := r.ProcessFloat32(c, in, out[written:])
		if read == 0 && n == 0 {
			return written, audio.Errorf(audio.DecoderError, "resample", "channel %d stalled with %d frames left", c, len(in))
		}
		in = in[read:]
		written += n
	}
	return written, nil
}

