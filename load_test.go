// SPDX-License-Identifier: EPL-2.0

package audengine

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/formats/wav"
)

func sinePCM(rate, channels, frames int, freq float64) *audio.PCM {
	pcm := &audio.PCM{SampleRate: rate, Channels: channels, Samples: make([]float32, frames*channels)}
	for f := range frames {
		v := float32(0.5 * math.Sin(2*math.Pi*freq*float64(f)/float64(rate)))
		for c := range channels {
			pcm.Samples[f*channels+c] = v
		}
	}
	return pcm
}

func writeTemp(t *testing.T, name string, pcm *audio.PCM) string {
	t.Helper()
	var buf bytes.Buffer
	if err := wav.WriteFloat32(&buf, pcm); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// crossings counts rising zero crossings on channel 0.
func crossings(pcm *audio.PCM) int {
	n := 0
	for f := 1; f < pcm.Frames(); f++ {
		if pcm.Samples[(f-1)*pcm.Channels] < 0 && pcm.Samples[f*pcm.Channels] >= 0 {
			n++
		}
	}
	return n
}

func TestRegistry_Formats(t *testing.T) {
	t.Parallel()

	want := []string{"aif", "aiff", "mp3", "oga", "ogg", "wav", "wave"}
	got := Registry().Formats()
	if len(got) != len(want) {
		t.Fatalf("formats = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("formats = %v, want %v", got, want)
		}
	}
}

func TestLoadFile_KeepsSamples(t *testing.T) {
	t.Parallel()

	src := sinePCM(48000, 2, 4800, 1000)
	pcm, err := LoadFile(writeTemp(t, "tone.WAV", src))
	if err != nil {
		t.Fatal(err)
	}
	if pcm.SampleRate != 48000 || pcm.Channels != 2 || len(pcm.Samples) != len(src.Samples) {
		t.Fatalf("loaded %d samples x %d ch at %d Hz", len(pcm.Samples), pcm.Channels, pcm.SampleRate)
	}
	for i := range src.Samples {
		if pcm.Samples[i] != src.Samples[i] {
			t.Fatalf("sample %d = %v, want %v", i, pcm.Samples[i], src.Samples[i])
		}
	}
}

func TestLoadFile_Resamples(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "tone.wav", sinePCM(24000, 2, 24000, 500))
	pcm, err := LoadFile(path, WithSampleRate(48000))
	if err != nil {
		t.Fatal(err)
	}

	if pcm.SampleRate != 48000 || pcm.Frames() != 48000 {
		t.Fatalf("got %d frames at %d Hz, want 48000 at 48000", pcm.Frames(), pcm.SampleRate)
	}
	// one second of 500 Hz keeps its pitch
	if n := crossings(pcm); n < 495 || n > 501 {
		t.Errorf("%d rising crossings, want about 500", n)
	}
	var peak float32
	for _, v := range pcm.Samples[4800:] {
		peak = max(peak, v)
	}
	if peak < 0.45 || peak > 0.55 {
		t.Errorf("peak = %v, want about 0.5", peak)
	}
}

func TestLoadFile_Mono(t *testing.T) {
	t.Parallel()

	src := &audio.PCM{SampleRate: 44100, Channels: 2, Samples: []float32{0.2, 0.4, -0.5, 0.5}}
	pcm, err := LoadFile(writeTemp(t, "pair.wav", src), WithMono())
	if err != nil {
		t.Fatal(err)
	}
	if pcm.Channels != 1 || len(pcm.Samples) != 2 {
		t.Fatalf("got %d samples x %d ch", len(pcm.Samples), pcm.Channels)
	}
	if math.Abs(float64(pcm.Samples[0]-0.3)) > 1e-6 || pcm.Samples[1] != 0 {
		t.Errorf("samples = %v, want [0.3 0]", pcm.Samples)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	flac := filepath.Join(dir, "take.flac")
	if err := os.WriteFile(flac, []byte("fLaC"), 0o644); err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(dir, "broken.wav")
	if err := os.WriteFile(broken, []byte("RIFF....WAVE"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want error
	}{
		{filepath.Join(dir, "missing.wav"), audio.ErrIO},
		{flac, audio.ErrUnsupportedFormat},
		{broken, audio.ErrDecoder},
	}
	for _, tt := range tests {
		if _, err := LoadFile(tt.path); !errors.Is(err, tt.want) {
			t.Errorf("LoadFile(%s) err = %v, want %v", filepath.Base(tt.path), err, tt.want)
		}
	}
}

func TestResample_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Resample(&audio.PCM{}, 48000); !errors.Is(err, audio.ErrDecoder) {
		t.Errorf("empty pcm err = %v", err)
	}
	if _, err := Resample(sinePCM(48000, 1, 10, 100), 0); !errors.Is(err, audio.ErrOutOfRange) {
		t.Errorf("zero rate err = %v", err)
	}

	same := sinePCM(48000, 1, 10, 100)
	if got, err := Resample(same, 48000); err != nil || got != same {
		t.Errorf("same rate should return the input, got %p, %v", got, err)
	}
}

func BenchmarkResample(b *testing.B) {
	pcm := sinePCM(44100, 2, 44100, 440)
	for b.Loop() {
		if _, err := Resample(pcm, 48000); err != nil {
			b.Fatal(err)
		}
	}
}
