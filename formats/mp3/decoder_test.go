// SPDX-License-Identifier: EPL-2.0

package mp3

import (
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/ik5/audengine/audio"
)

// mockReader hands out little-endian int16 bytes, at most chunk bytes per
// call so that samples can be split across reads.
type mockReader struct {
	data  []byte
	chunk int
	err   error
}

func newMockReader(chunk int, samples ...int16) *mockReader {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(s))
	}
	return &mockReader{data: data, chunk: chunk}
}

func (m *mockReader) SampleRate() int { return 44100 }

func (m *mockReader) Read(p []byte) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	if len(m.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p[:min(len(p), m.chunk)], m.data)
	m.data = m.data[n:]
	return n, nil
}

func TestSource_ReadSamples(t *testing.T) {
	t.Parallel()

	in := []int16{0, 16384, -16384, 32767, -32768, 1}
	for _, chunk := range []int{1, 3, 4, 1 << 20} {
		src := &source{dec: newMockReader(chunk, in...)}

		var got []float32
		dst := make([]float32, 4)
		for {
			n, err := src.ReadSamples(dst)
			got = append(got, dst[:n]...)
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
		}

		if len(got) != len(in) {
			t.Fatalf("chunk %d: %d samples, want %d", chunk, len(got), len(in))
		}
		for i, v := range in {
			if want := float32(v) / 32768; got[i] != want {
				t.Errorf("chunk %d: sample %d = %v, want %v", chunk, i, got[i], want)
			}
		}
	}
}

func TestSource_Metadata(t *testing.T) {
	t.Parallel()

	src := &source{dec: newMockReader(8)}
	if src.SampleRate() != 44100 || src.Channels() != 2 {
		t.Errorf("got %d Hz %d ch", src.SampleRate(), src.Channels())
	}
	if n, err := src.ReadSamples(nil); n != 0 || err != nil {
		t.Errorf("ReadSamples(nil) = %d, %v", n, err)
	}
}

func TestSource_DecoderError(t *testing.T) {
	t.Parallel()

	src := &source{dec: &mockReader{err: errors.New("bad frame")}}
	_, err := src.ReadSamples(make([]float32, 8))
	if !errors.Is(err, audio.ErrDecoder) {
		t.Errorf("ReadSamples() = %v, want decoder error", err)
	}
}

func TestDecoder_InvalidInput(t *testing.T) {
	t.Parallel()

	_, err := Decoder{}.Decode(strings.NewReader("definitely not mpeg audio"))
	if !errors.Is(err, audio.ErrDecoder) {
		t.Errorf("Decode() = %v, want decoder error", err)
	}
}
