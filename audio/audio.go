// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Source is a decoded stream of interleaved float32 samples. Decoders return
// it; the engine drains it into a PCM buffer before playback.
type Source interface {
	// SampleRate of the PCM stream in Hz.
	SampleRate() int
	// Channels count (e.g., 1=mono, 2=stereo).
	Channels() int
	// ReadSamples fills dst with interleaved float32 samples in [-1,1].
	// Returns number of float32 values written (not frames). When n == 0 with err == io.EOF, the stream is finished.
	ReadSamples(dst []float32) (n int, err error)

	BufSize() int

	// Close releases any resources.
	Close() error
}

// Decoder constructs a Source from an input reader.
type Decoder interface {
	Decode(r io.Reader) (Source, error)
}

// Registry maps format keys (e.g., "wav", "mp3", "ogg") to decoders.
type Registry struct {
	codecs map[string]Decoder

	mtx *sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[string]Decoder),
		mtx:    &sync.Mutex{},
	}
}

// Register adds or replaces the decoder for format. Keys are case-insensitive
// and a leading dot is ignored, so ".WAV" and "wav" name the same format.
func (r *Registry) Register(format string, d Decoder) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.codecs[normalizeFormat(format)] = d
}

func (r *Registry) Get(format string) (Decoder, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	d, ok := r.codecs[normalizeFormat(format)]
	return d, ok
}

// Formats lists the registered keys in sorted order.
func (r *Registry) Formats() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	keys := make([]string, 0, len(r.codecs))
	for k := range r.codecs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeFormat(format string) string {
	return strings.ToLower(strings.TrimPrefix(format, "."))
}

// PCM is a fully decoded interleaved buffer.
type PCM struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames is the number of whole frames held by the buffer.
func (p *PCM) Frames() int {
	if p == nil || p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Duration is the playback length at the buffer's own sample rate.
func (p *PCM) Duration() time.Duration {
	if p == nil || p.SampleRate <= 0 {
		return 0
	}
	return FramesToDuration(p.Frames(), p.SampleRate)
}

// Validate reports whether the buffer can be played back.
func (p *PCM) Validate() error {
	if p == nil || p.Channels <= 0 || p.SampleRate <= 0 {
		return ErrEmptyPCM
	}
	if len(p.Samples)%p.Channels != 0 {
		return ErrInvalidDstSize
	}
	return nil
}

// ReadAll drains src into a PCM buffer. The source is not closed.
func ReadAll(src Source) (*PCM, error) {
	bufSize := src.BufSize()
	if bufSize <= 0 {
		bufSize = 4096
	}
	channels := src.Channels()
	if channels > 0 {
		bufSize -= bufSize % channels
		if bufSize == 0 {
			bufSize = channels
		}
	}

	pcm := &PCM{SampleRate: src.SampleRate(), Channels: channels}
	buf := make([]float32, bufSize)

	for {
		n, err := src.ReadSamples(buf)
		if n > 0 {
			pcm.Samples = append(pcm.Samples, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, E(DecoderError, "read samples", err)
		}
		if n == 0 {
			break
		}
	}

	if channels > 0 {
		// drop a trailing partial frame from truncated files
		pcm.Samples = pcm.Samples[:len(pcm.Samples)-len(pcm.Samples)%channels]
	}

	return pcm, nil
}

// FramesToDuration converts a frame count at rate to wall time.
func FramesToDuration(frames, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(rate))
}

// DurationToFrames converts wall time at rate to a frame count, rounding down.
func DurationToFrames(d time.Duration, rate int) int {
	if d <= 0 || rate <= 0 {
		return 0
	}
	return int(int64(d) * int64(rate) / int64(time.Second))
}
