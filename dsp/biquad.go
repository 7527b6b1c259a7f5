// SPDX-License-Identifier: EPL-2.0

package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/ik5/audengine/audio"
)

// FilterType is an RBJ cookbook response.
type FilterType int

const (
	Peaking FilterType = iota
	LowPass
	HighPass
	LowShelf
	HighShelf
	BandPass
	Notch
)

var filterNames = [...]string{
	Peaking:   "peaking",
	LowPass:   "lowpass",
	HighPass:  "highpass",
	LowShelf:  "lowshelf",
	HighShelf: "highshelf",
	BandPass:  "bandpass",
	Notch:     "notch",
}

func (t FilterType) String() string {
	if t < 0 || int(t) >= len(filterNames) {
		return fmt.Sprintf("filter(%d)", int(t))
	}
	return filterNames[t]
}

func ParseFilterType(s string) (FilterType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range filterNames {
		if name == s {
			return FilterType(i), nil
		}
	}
	return Peaking, audio.Errorf(audio.OutOfRange, "parse filter type", "%q", s)
}

// Coefficients are normalised so that a0 == 1.
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Identity passes the signal unchanged.
var Identity = Coefficients{B0: 1}

// Design computes RBJ cookbook coefficients for one band at sample rate fs.
func Design(t FilterType, f0, q, gainDB, fs float64) Coefficients {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * f0 / fs
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * q)

	var b0, b1, b2, a0, a1, a2 float64

	switch t {
	case Peaking:
		b0 = 1 + alpha*a
		b1 = -2 * cosw
		b2 = 1 - alpha*a
		a0 = 1 + alpha/a
		a1 = -2 * cosw
		a2 = 1 - alpha/a
	case LowPass:
		b0 = (1 - cosw) / 2
		b1 = 1 - cosw
		b2 = (1 - cosw) / 2
		a0 = 1 + alpha
		a1 = -2 * cosw
		a2 = 1 - alpha
	case HighPass:
		b0 = (1 + cosw) / 2
		b1 = -(1 + cosw)
		b2 = (1 + cosw) / 2
		a0 = 1 + alpha
		a1 = -2 * cosw
		a2 = 1 - alpha
	case BandPass:
		// constant 0 dB peak gain
		b0 = alpha
		b1 = 0
		b2 = -alpha
		a0 = 1 + alpha
		a1 = -2 * cosw
		a2 = 1 - alpha
	case Notch:
		b0 = 1
		b1 = -2 * cosw
		b2 = 1
		a0 = 1 + alpha
		a1 = -2 * cosw
		a2 = 1 - alpha
	case LowShelf:
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) - (a-1)*cosw + sq)
		b1 = 2 * a * ((a - 1) - (a+1)*cosw)
		b2 = a * ((a + 1) - (a-1)*cosw - sq)
		a0 = (a + 1) + (a-1)*cosw + sq
		a1 = -2 * ((a - 1) + (a+1)*cosw)
		a2 = (a + 1) + (a-1)*cosw - sq
	case HighShelf:
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) + (a-1)*cosw + sq)
		b1 = -2 * a * ((a - 1) + (a+1)*cosw)
		b2 = a * ((a + 1) + (a-1)*cosw - sq)
		a0 = (a + 1) - (a-1)*cosw + sq
		a1 = 2 * ((a - 1) - (a+1)*cosw)
		a2 = (a + 1) - (a-1)*cosw - sq
	default:
		return Identity
	}

	return Coefficients{
		B0: b0 / a0,
		B1: b1 / a0,
		B2: b2 / a0,
		A1: a1 / a0,
		A2: a2 / a0,
	}
}

// Valid reports whether every coefficient is finite.
func (c Coefficients) Valid() bool {
	for _, v := range [...]float64{c.B0, c.B1, c.B2, c.A1, c.A2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Response evaluates H(e^jw) at frequency f.
func (c Coefficients) Response(f, fs float64) complex128 {
	w := 2 * math.Pi * f / fs
	z1 := cmplx.Exp(complex(0, -w))
	z2 := z1 * z1

	num := complex(c.B0, 0) + complex(c.B1, 0)*z1 + complex(c.B2, 0)*z2
	den := 1 + complex(c.A1, 0)*z1 + complex(c.A2, 0)*z2
	return num / den
}

// Magnitude is |H| at frequency f.
func (c Coefficients) Magnitude(f, fs float64) float64 {
	return cmplx.Abs(c.Response(f, fs))
}

// Biquad is a Direct Form II transposed section with independent state per
// channel.
type Biquad struct {
	b0, b1, b2, a1, a2 float32
	z1, z2             []float32
}

func NewBiquad(channels int) *Biquad {
	b := &Biquad{
		z1: make([]float32, channels),
		z2: make([]float32, channels),
	}
	b.SetCoefficients(Identity)
	return b
}

// SetCoefficients swaps coefficients without touching state.
func (b *Biquad) SetCoefficients(c Coefficients) {
	b.b0, b.b1, b.b2 = float32(c.B0), float32(c.B1), float32(c.B2)
	b.a1, b.a2 = float32(c.A1), float32(c.A2)
}

// Reset clears the filter memory.
func (b *Biquad) Reset() {
	clear(b.z1)
	clear(b.z2)
}

// Process filters frames of interleaved buf in place.
func (b *Biquad) Process(buf []float32, frames int) {
	channels := len(b.z1)
	for c := range channels {
		z1, z2 := b.z1[c], b.z2[c]
		for i := c; i < frames*channels; i += channels {
			x := buf[i]
			y := b.b0*x + z1
			z1 = b.b1*x - b.a1*y + z2
			z2 = b.b2*x - b.a2*y
			buf[i] = y
		}
		b.z1[c], b.z2[c] = z1, z2
	}
}
