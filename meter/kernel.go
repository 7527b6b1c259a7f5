// SPDX-License-Identifier: EPL-2.0

package meter

import (
	"math"

	"golang.org/x/sys/cpu"
)

// kernel folds interleaved samples into per-channel peak and sum of squares.
// peak and sumSq arrive zeroed.
type kernel struct {
	name  string
	lanes int
	fn    func(buf []float32, channels int, peak, sumSq []float32)
}

var (
	scalarKernel = kernel{name: "scalar", lanes: 1, fn: peakSquaresScalar}
	sseKernel    = kernel{name: "sse", lanes: 4, fn: peakSquares4}
	avx2Kernel   = kernel{name: "avx2", lanes: 8, fn: peakSquares8}
)

var (
	hasWide8 = cpu.X86.HasAVX2
	hasWide4 = cpu.X86.HasSSE2 || cpu.ARM64.HasASIMD
)

// fits reports whether every lane of k stays on one channel.
func (k kernel) fits(channels int) bool { return k.lanes == 1 || k.lanes%channels == 0 }

// selectKernel picks the widest kernel the CPU supports that fits the
// channel count.
func selectKernel(channels int) kernel {
	switch {
	case hasWide8 && avx2Kernel.fits(channels):
		return avx2Kernel
	case (hasWide8 || hasWide4) && sseKernel.fits(channels):
		return sseKernel
	default:
		return scalarKernel
	}
}

func kernelByName(name string, channels int) (kernel, bool) {
	for _, k := range [...]kernel{avx2Kernel, sseKernel, scalarKernel} {
		if k.name == name && k.fits(channels) {
			return k, true
		}
	}
	return kernel{}, false
}

func abs32(v float32) float32 {
	return math.Float32frombits(math.Float32bits(v) &^ (1 << 31))
}

func peakSquaresScalar(buf []float32, channels int, peak, sumSq []float32) {
	for i, v := range buf {
		c := i % channels
		a := abs32(v)
		if a > peak[c] {
			peak[c] = a
		}
		sumSq[c] += v * v
	}
}

func peakSquares4(buf []float32, channels int, peak, sumSq []float32) {
	var p, s [4]float32
	n := len(buf) &^ 3
	for i := 0; i < n; i += 4 {
		v := buf[i : i+4 : i+4]
		a0, a1, a2, a3 := abs32(v[0]), abs32(v[1]), abs32(v[2]), abs32(v[3])
		p[0], p[1], p[2], p[3] = max(p[0], a0), max(p[1], a1), max(p[2], a2), max(p[3], a3)
		s[0] += v[0] * v[0]
		s[1] += v[1] * v[1]
		s[2] += v[2] * v[2]
		s[3] += v[3] * v[3]
	}
	reduce(p[:], s[:], channels, peak, sumSq)
	peakSquaresTail(buf, n, channels, peak, sumSq)
}

func peakSquares8(buf []float32, channels int, peak, sumSq []float32) {
	var p, s [8]float32
	n := len(buf) &^ 7
	for i := 0; i < n; i += 8 {
		v := buf[i : i+8 : i+8]
		for l := range 8 {
			p[l] = max(p[l], abs32(v[l]))
			s[l] += v[l] * v[l]
		}
	}
	reduce(p[:], s[:], channels, peak, sumSq)
	peakSquaresTail(buf, n, channels, peak, sumSq)
}

// reduce folds lane accumulators into channels. Lane l carries channel
// l % channels.
func reduce(p, s []float32, channels int, peak, sumSq []float32) {
	for l := range p {
		c := l % channels
		peak[c] = max(peak[c], p[l])
		sumSq[c] += s[l]
	}
}

func peakSquaresTail(buf []float32, from, channels int, peak, sumSq []float32) {
	for i := from; i < len(buf); i++ {
		c := i % channels
		v := buf[i]
		peak[c] = max(peak[c], abs32(v))
		sumSq[c] += v * v
	}
}
