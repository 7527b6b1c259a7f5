// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/ik5/audengine/audio"
)

const chunkSamples = 8192

func putFloats(dst []byte, samples []float32) {
	for i, v := range samples {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v))
	}
}

// WriteFloat32 writes pcm as a 32-bit IEEE float WAV. Samples are stored
// bit for bit.
func WriteFloat32(w io.Writer, pcm *audio.PCM) error {
	if err := pcm.Validate(); err != nil {
		return err
	}
	size, err := dataBytes(len(pcm.Samples), 4)
	if err != nil {
		return err
	}

	var hdr [headerSize]byte
	putHeader(hdr[:], formatIEEEFloat, pcm.Channels, pcm.SampleRate, 32, size)
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	buf := make([]byte, min(len(pcm.Samples), chunkSamples)*4)
	for i := 0; i < len(pcm.Samples); i += chunkSamples {
		chunk := pcm.Samples[i:min(i+chunkSamples, len(pcm.Samples))]
		putFloats(buf, chunk)
		if _, err := w.Write(buf[:len(chunk)*4]); err != nil {
			return fmt.Errorf("write samples: %w", err)
		}
	}
	return nil
}

// FloatWriter streams 32-bit float frames to a seekable file and patches the
// header sizes on Close. A file left unpatched still decodes; the reader
// treats the zero data size as open-ended.
type FloatWriter struct {
	ws         io.WriteSeeker
	sampleRate int
	channels   int
	buf        []byte
	samples    int64
	closed     bool
}

func NewFloatWriter(ws io.WriteSeeker, sampleRate, channels int) (*FloatWriter, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, audio.ErrEmptyPCM
	}

	var hdr [headerSize]byte
	putHeader(hdr[:], formatIEEEFloat, channels, sampleRate, 32, 0)
	if _, err := ws.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	return &FloatWriter{
		ws:         ws,
		sampleRate: sampleRate,
		channels:   channels,
		buf:        make([]byte, chunkSamples*4),
	}, nil
}

func (w *FloatWriter) Channels() int   { return w.channels }
func (w *FloatWriter) SampleRate() int { return w.sampleRate }

// Frames written so far.
func (w *FloatWriter) Frames() int64 { return w.samples / int64(w.channels) }

// Write appends interleaved samples; a trailing partial frame is dropped.
func (w *FloatWriter) Write(samples []float32) error {
	if w.closed {
		return ErrClosed
	}
	samples = samples[:len(samples)-len(samples)%w.channels]
	if _, err := dataBytes(int(w.samples)+len(samples), 4); err != nil {
		return err
	}

	for len(samples) > 0 {
		n := min(len(samples), chunkSamples)
		putFloats(w.buf, samples[:n])
		if _, err := w.ws.Write(w.buf[:n*4]); err != nil {
			return fmt.Errorf("write samples: %w", err)
		}
		w.samples += int64(n)
		samples = samples[n:]
	}
	return nil
}

// Close patches the RIFF and data sizes. It does not close the underlying
// writer.
func (w *FloatWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	size := uint32(w.samples * 4)
	var b [4]byte

	binary.LittleEndian.PutUint32(b[:], 36+size)
	if _, err := w.ws.Seek(4, io.SeekStart); err != nil {
		return fmt.Errorf("patch header: %w", err)
	}
	if _, err := w.ws.Write(b[:]); err != nil {
		return fmt.Errorf("patch header: %w", err)
	}

	binary.LittleEndian.PutUint32(b[:], size)
	if _, err := w.ws.Seek(40, io.SeekStart); err != nil {
		return fmt.Errorf("patch header: %w", err)
	}
	if _, err := w.ws.Write(b[:]); err != nil {
		return fmt.Errorf("patch header: %w", err)
	}

	_, err := w.ws.Seek(0, io.SeekEnd)
	return err
}
