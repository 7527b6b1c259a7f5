// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/ik5/audengine/audio"
)

const defaultBufSize = 4096

// pcmReader is the part of the go-audio decoder the source needs.
type pcmReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// pcmSource reads integer PCM through go-audio/wav.
type pcmSource struct {
	dec        pcmReader
	sampleRate int
	channels   int
	scale      float32
	ints       *goaudio.IntBuffer
}

func (s *pcmSource) SampleRate() int { return s.sampleRate }
func (s *pcmSource) Channels() int   { return s.channels }
func (s *pcmSource) BufSize() int    { return defaultBufSize }
func (s *pcmSource) Close() error    { return nil }

func (s *pcmSource) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if cap(s.ints.Data) < len(dst) {
		s.ints.Data = make([]int, len(dst))
	}
	s.ints.Data = s.ints.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.ints)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, audio.E(audio.DecoderError, "read wav", err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	for i, v := range s.ints.Data[:n] {
		dst[i] = float32(v) * s.scale
	}
	return n, nil
}

// floatSource reads 32-bit IEEE float samples directly.
type floatSource struct {
	r          io.Reader
	sampleRate int
	channels   int
	buf        []byte
}

func (s *floatSource) SampleRate() int { return s.sampleRate }
func (s *floatSource) Channels() int   { return s.channels }
func (s *floatSource) BufSize() int    { return defaultBufSize }
func (s *floatSource) Close() error    { return nil }

func (s *floatSource) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if cap(s.buf) < len(dst)*4 {
		s.buf = make([]byte, len(dst)*4)
	}
	s.buf = s.buf[:len(dst)*4]

	n, err := io.ReadFull(s.r, s.buf)
	samples := n / 4
	for i := range samples {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(s.buf[4*i:]))
	}

	switch {
	case err == nil:
		return samples, nil
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		if samples == 0 {
			return 0, io.EOF
		}
		return samples, nil
	default:
		return samples, audio.E(audio.IoError, "read wav", err)
	}
}

// Decoder reads integer PCM (16, 24 and 32 bit) and 32-bit float WAV files.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	const op = "decode wav"

	rs, ok := r.(io.ReadSeeker)
	if !ok {
		// go-audio needs to seek
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, audio.E(audio.IoError, op, err)
		}
		rs = bytes.NewReader(data)
	}

	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, audio.E(audio.IoError, op, err)
	}

	h, err := readHeader(rs)
	if err != nil {
		return nil, audio.E(audio.DecoderError, op, err)
	}

	switch {
	case h.format == formatIEEEFloat && h.bitsPerSample == 32:
		var data io.Reader = rs
		if h.dataSize != unknownSize {
			data = io.LimitReader(rs, h.dataSize)
		}
		return &floatSource{r: data, sampleRate: h.sampleRate, channels: h.channels}, nil

	case h.format == formatPCM && (h.bitsPerSample == 16 || h.bitsPerSample == 24 || h.bitsPerSample == 32):
		if _, err := rs.Seek(start, io.SeekStart); err != nil {
			return nil, audio.E(audio.IoError, op, err)
		}
		dec := gowav.NewDecoder(rs)
		if err := dec.FwdToPCM(); err != nil {
			return nil, audio.E(audio.DecoderError, op, err)
		}
		return &pcmSource{
			dec:        dec,
			sampleRate: h.sampleRate,
			channels:   h.channels,
			scale:      1 / float32(int64(1)<<(h.bitsPerSample-1)),
			ints: &goaudio.IntBuffer{
				Format: &goaudio.Format{NumChannels: h.channels, SampleRate: h.sampleRate},
				Data:   make([]int, defaultBufSize),
			},
		}, nil

	default:
		return nil, audio.E(audio.DecoderError, op,
			fmt.Errorf("%w: format %d, %d bits", ErrUnsupportedEncoding, h.format, h.bitsPerSample))
	}
}

// ReadPCM decodes a whole WAV stream into memory.
func ReadPCM(r io.Reader) (*audio.PCM, error) {
	src, err := Decoder{}.Decode(r)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return audio.ReadAll(src)
}
