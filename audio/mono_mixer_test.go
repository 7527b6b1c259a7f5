// SPDX-License-Identifier: EPL-2.0

package audio_test

import (
	"io"
	"testing"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/internal/audiotest"
)

func TestMonoMixer_MonoPassthrough(t *testing.T) {
	t.Parallel()

	mixer := audio.NewMonoMixer(audiotest.NewConstantSource(8000, 1, 100, 0.5))

	buf := make([]float32, 10)
	n, err := mixer.ReadSamples(buf)
	if err != nil {
		t.Fatalf("ReadSamples() error = %v", err)
	}
	if n != 10 {
		t.Fatalf("ReadSamples() n = %d, want 10", n)
	}
	for i := range n {
		if buf[i] != 0.5 {
			t.Errorf("buf[%d] = %v, want 0.5", i, buf[i])
		}
	}
}

func TestMonoMixer_StereoToMono(t *testing.T) {
	t.Parallel()

	src := audiotest.NewMockSource(8000, 2, 100, func(_ int, channel int) float32 {
		if channel == 0 {
			return 0.4
		}
		return 0.6
	})
	mixer := audio.NewMonoMixer(src)

	buf := make([]float32, 200)
	n, err := mixer.ReadSamples(buf)
	if err != io.EOF {
		t.Fatalf("ReadSamples() error = %v, want io.EOF at end of source", err)
	}
	if n != 100 {
		t.Fatalf("ReadSamples() n = %d, want 100 frames", n)
	}
	for i := range n {
		if d := buf[i] - 0.5; d > 1e-6 || d < -1e-6 {
			t.Fatalf("buf[%d] = %v, want 0.5", i, buf[i])
		}
	}
}

func TestDownmix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		channels int
		src      []float32
		want     []float32
	}{
		{"mono", 1, []float32{0.1, 0.2}, []float32{0.1, 0.2}},
		{"stereo", 2, []float32{1, 0, 0.5, 0.5}, []float32{0.5, 0.5}},
		{"quad", 4, []float32{1, 1, 1, 1, 0, 0, 0, 1}, []float32{1, 0.25}},
		{"three", 3, []float32{0.3, 0.3, 0.3}, []float32{0.3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dst := make([]float32, len(tt.want))
			n := audio.Downmix(dst, tt.src, tt.channels)
			if n != len(tt.want) {
				t.Fatalf("Downmix() = %d frames, want %d", n, len(tt.want))
			}
			for i := range tt.want {
				if d := dst[i] - tt.want[i]; d > 1e-6 || d < -1e-6 {
					t.Errorf("dst[%d] = %v, want %v", i, dst[i], tt.want[i])
				}
			}
		})
	}
}

func TestMapChannels(t *testing.T) {
	t.Parallel()

	t.Run("mono to stereo spreads", func(t *testing.T) {
		dst := make([]float32, 4)
		audio.MapChannels(dst, 2, []float32{0.5, -0.5}, 1, 2, 2)
		want := []float32{1, 1, -1, -1}
		for i := range want {
			if dst[i] != want[i] {
				t.Errorf("dst[%d] = %v, want %v", i, dst[i], want[i])
			}
		}
	})

	t.Run("stereo to mono averages", func(t *testing.T) {
		dst := make([]float32, 1)
		audio.MapChannels(dst, 1, []float32{0.2, 0.4}, 2, 1, 1)
		if d := dst[0] - 0.3; d > 1e-6 || d < -1e-6 {
			t.Errorf("dst[0] = %v, want 0.3", dst[0])
		}
	})

	t.Run("accumulates", func(t *testing.T) {
		dst := []float32{0.25, 0.25}
		audio.MapChannels(dst, 2, []float32{0.25, 0.5}, 2, 1, 1)
		if dst[0] != 0.5 || dst[1] != 0.75 {
			t.Errorf("dst = %v, want [0.5 0.75]", dst)
		}
	})
}

func TestDownmix_ZeroAllocs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping allocation test in short mode")
	}

	src := make([]float32, 2048)
	dst := make([]float32, 1024)

	allocs := testing.AllocsPerRun(100, func() {
		audio.Downmix(dst, src, 2)
	})
	if allocs > 0 {
		t.Errorf("Downmix allocated %v times, want 0", allocs)
	}
}
