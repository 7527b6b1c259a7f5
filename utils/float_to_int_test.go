// SPDX-License-Identifier: EPL-2.0

package utils

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestFloat32ToInt16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input float32
		want  int16
	}{
		{
			name:  "zero",
			input: 0.0,
			want:  0,
		},
		{
			name:  "max positive",
			input: 1.0,
			want:  math.MaxInt16,
		},
		{
			name:  "max negative",
			input: -1.0,
			want:  math.MinInt16,
		},
		{
			name:  "half positive",
			input: 0.5,
			want:  16383, // 32767 * 0.5 = 16383.5, truncated
		},
		{
			name:  "half negative",
			input: -0.5,
			want:  -16384,
		},
		{
			name:  "small positive",
			input: 0.001,
			want:  32,
		},
		{
			name:  "clamp over max",
			input: 1.5,
			want:  math.MaxInt16,
		},
		{
			name:  "clamp way under min",
			input: -100.0,
			want:  math.MinInt16,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Float32ToInt16(tt.input); got != tt.want {
				t.Errorf("Float32ToInt16(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFloat32ToInt32(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input float32
		want  int32
	}{
		{0, 0},
		{1, math.MaxInt32},
		{-1, math.MinInt32},
		{2, math.MaxInt32},
		{-0.5, -1073741824},
	}

	for _, tt := range tests {
		if got := Float32ToInt32(tt.input); got != tt.want {
			t.Errorf("Float32ToInt32(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestIntRoundTrip(t *testing.T) {
	t.Parallel()

	for _, v := range []int16{math.MinInt16, -16384, -1, 0, math.MaxInt16} {
		if got := Float32ToInt16(Int16ToFloat32(v)); got != v {
			t.Errorf("int16 %d round-tripped to %d", v, got)
		}
	}

	src := []float32{-1, -0.25, 0, 0.25, 1}
	ints := make([]int32, len(src))
	back := make([]float32, len(src))
	FloatsToInt32(ints, src)
	Int32sToFloats(back, ints)
	for i := range src {
		if d := math.Abs(float64(back[i] - src[i])); d > 1e-7 {
			t.Errorf("int32 round trip [%d] = %v, want %v", i, back[i], src[i])
		}
	}
}

func TestPutFloat32LE(t *testing.T) {
	t.Parallel()

	src := []float32{0.5, -1, float32(math.Pi)}
	dst := make([]byte, 10) // room for two samples only

	if n := PutFloat32LE(dst, src); n != 2 {
		t.Fatalf("PutFloat32LE() = %d, want 2", n)
	}
	for i := range 2 {
		got := math.Float32frombits(binary.LittleEndian.Uint32(dst[i*4:]))
		if got != src[i] {
			t.Errorf("sample %d = %v, want %v", i, got, src[i])
		}
	}
}

func TestPutInt16LE(t *testing.T) {
	t.Parallel()

	dst := make([]byte, 4)
	PutInt16LE(dst, []float32{1, -1})
	if got := int16(binary.LittleEndian.Uint16(dst)); got != math.MaxInt16 {
		t.Errorf("first sample = %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(dst[2:])); got != math.MinInt16 {
		t.Errorf("second sample = %d", got)
	}
}

func BenchmarkFloatsToInt16(b *testing.B) {
	src := make([]float32, 4096)
	for i := range src {
		src[i] = float32(math.Sin(float64(i) * 0.01))
	}
	dst := make([]int16, len(src))

	b.ReportAllocs()
	for b.Loop() {
		FloatsToInt16(dst, src)
	}
}
