// SPDX-License-Identifier: EPL-2.0

package mp3

import (
	"encoding/binary"
	"errors"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/ik5/audengine/audio"
)

// go-mp3 always produces 16-bit little-endian stereo.
const channels = 2

// scale maps int16 onto [-1, 1) the same way the wav and aiff decoders do.
const scale = 1.0 / 32768

// mp3Reader is the part of gomp3.Decoder the source needs.
type mp3Reader interface {
	Read([]byte) (int, error)
	SampleRate() int
}

type source struct {
	dec  mp3Reader
	buf  []byte
	tail int // bytes of a partial sample kept from the previous read
}

func (s *source) SampleRate() int { return s.dec.SampleRate() }
func (s *source) Channels() int   { return channels }
func (s *source) BufSize() int    { return 4096 }
func (s *source) Close() error    { return nil }

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	need := len(dst) * 2
	if cap(s.buf) < need {
		buf := make([]byte, need)
		copy(buf, s.buf[:s.tail])
		s.buf = buf
	}
	s.buf = s.buf[:need]

	n := s.tail
	var err error
	for n < 2 && err == nil {
		var m int
		m, err = s.dec.Read(s.buf[n:])
		n += m
	}

	samples := n / 2
	for i := range samples {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(s.buf[2*i:]))) * scale
	}
	s.tail = copy(s.buf, s.buf[samples*2:n])

	switch {
	case err == nil:
		return samples, nil
	case errors.Is(err, io.EOF):
		if samples == 0 {
			return 0, io.EOF
		}
		return samples, nil
	default:
		return samples, audio.E(audio.DecoderError, "read mp3", err)
	}
}

// Decoder reads MPEG-1/2 Layer III through github.com/hajimehoshi/go-mp3.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, audio.E(audio.DecoderError, "decode mp3", err)
	}
	return &source{dec: dec, buf: make([]byte, 8192)}, nil
}
