// SPDX-License-Identifier: EPL-2.0

package vorbis

import (
	"errors"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/ik5/audengine/audio"
)

// oggReader is the part of oggvorbis.Reader the source needs.
type oggReader interface {
	SampleRate() int
	Channels() int
	Read([]float32) (int, error)
}

type source struct {
	dec oggReader
}

func (s *source) SampleRate() int { return s.dec.SampleRate() }
func (s *source) Channels() int   { return s.dec.Channels() }
func (s *source) BufSize() int    { return 4096 }
func (s *source) Close() error    { return nil }

// ReadSamples decodes straight into dst. oggvorbis returns a whole number of
// frames, so dst is trimmed to a multiple of the channel count.
func (s *source) ReadSamples(dst []float32) (int, error) {
	dst = dst[:len(dst)-len(dst)%s.dec.Channels()]
	if len(dst) == 0 {
		return 0, nil
	}

	n, err := s.dec.Read(dst)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF):
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	default:
		return n, audio.E(audio.DecoderError, "read vorbis", err)
	}
}

// Decoder reads Ogg Vorbis through github.com/jfreymuth/oggvorbis.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, audio.E(audio.DecoderError, "decode vorbis", err)
	}
	if dec.Channels() <= 0 {
		return nil, audio.Errorf(audio.DecoderError, "decode vorbis", "%d channels", dec.Channels())
	}
	return &source{dec: dec}, nil
}
