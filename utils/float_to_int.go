// SPDX-License-Identifier: EPL-2.0

// Package utils converts between the engine's float32 samples and the
// integer and byte encodings devices and files use.
package utils

import (
	"encoding/binary"
	"math"
)

func clamp(x float32) float32 {
	if x > 1 {
		return 1
	} else if x < -1 {
		return -1
	}
	return x
}

// Float32ToInt16 clamps x to [-1,1] and scales it so that -1 maps to
// math.MinInt16 and 1 to math.MaxInt16.
func Float32ToInt16(x float32) int16 {
	x = clamp(x)
	if x < 0 {
		return int16(x * 32768.0)
	}
	return int16(x * 32767.0)
}

func Int16ToFloat32(v int16) float32 {
	if v < 0 {
		return float32(v) / 32768.0
	}
	return float32(v) / 32767.0
}

// Float32ToInt32 is Float32ToInt16 at 32-bit depth. Scaling is done in
// float64 because float32 cannot represent math.MaxInt32.
func Float32ToInt32(x float32) int32 {
	x = clamp(x)
	if x < 0 {
		return int32(float64(x) * 2147483648.0)
	}
	return int32(float64(x) * 2147483647.0)
}

func Int32ToFloat32(v int32) float32 {
	if v < 0 {
		return float32(float64(v) / 2147483648.0)
	}
	return float32(float64(v) / 2147483647.0)
}

// FloatsToInt16 converts min(len(dst), len(src)) samples and returns the count.
func FloatsToInt16(dst []int16, src []float32) int {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] = Float32ToInt16(src[i])
	}
	return n
}

func FloatsToInt32(dst []int32, src []float32) int {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] = Float32ToInt32(src[i])
	}
	return n
}

func Int16sToFloats(dst []float32, src []int16) int {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] = Int16ToFloat32(src[i])
	}
	return n
}

func Int32sToFloats(dst []float32, src []int32) int {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] = Int32ToFloat32(src[i])
	}
	return n
}

// PutFloat32LE encodes src as little-endian IEEE floats and returns the
// number of samples written. dst needs 4 bytes per sample.
func PutFloat32LE(dst []byte, src []float32) int {
	n := min(len(dst)/4, len(src))
	for i := range n {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(src[i]))
	}
	return n
}

// PutInt16LE encodes src as clamped little-endian 16-bit PCM.
func PutInt16LE(dst []byte, src []float32) int {
	n := min(len(dst)/2, len(src))
	for i := range n {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(Float32ToInt16(src[i])))
	}
	return n
}
