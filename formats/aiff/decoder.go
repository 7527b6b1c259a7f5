// SPDX-License-Identifier: EPL-2.0

package aiff

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"

	"github.com/ik5/audengine/audio"
)

const defaultBufSize = 4096

// aiffReader is the part of aiff.Decoder the source needs.
type aiffReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

type source struct {
	dec        aiffReader
	sampleRate int
	channels   int
	scale      float32
	ints       *goaudio.IntBuffer
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return s.channels }
func (s *source) BufSize() int    { return defaultBufSize }
func (s *source) Close() error    { return nil }

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if cap(s.ints.Data) < len(dst) {
		s.ints.Data = make([]int, len(dst))
	}
	s.ints.Data = s.ints.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.ints)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, audio.E(audio.DecoderError, "read aiff", err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	for i, v := range s.ints.Data[:n] {
		dst[i] = float32(v) * s.scale
	}
	return n, nil
}

func newSource(dec aiffReader, sampleRate, channels, bitDepth int) *source {
	return &source{
		dec:        dec,
		sampleRate: sampleRate,
		channels:   channels,
		scale:      1 / float32(int64(1)<<(bitDepth-1)),
		ints: &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			Data:   make([]int, defaultBufSize),
		},
	}
}

// Decoder reads 16, 24 and 32-bit AIFF through go-audio/aiff.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	const op = "decode aiff"

	rs, ok := r.(io.ReadSeeker)
	if !ok {
		// go-audio needs to seek
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, audio.E(audio.IoError, op, err)
		}
		rs = bytes.NewReader(data)
	}

	dec := aiff.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, audio.E(audio.DecoderError, op, ErrNotAiffFile)
	}
	dec.ReadInfo()

	bits := int(dec.BitDepth)
	if bits != 16 && bits != 24 && bits != 32 {
		return nil, audio.E(audio.DecoderError, op, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bits))
	}

	format := dec.Format()
	if format == nil || format.NumChannels <= 0 || format.SampleRate <= 0 {
		return nil, audio.E(audio.DecoderError, op, ErrUnsupportedAiffLayout)
	}

	return newSource(dec, format.SampleRate, format.NumChannels, bits), nil
}
