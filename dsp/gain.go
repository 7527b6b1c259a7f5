// SPDX-License-Identifier: EPL-2.0

package dsp

import (
	"math"
	"sync/atomic"
)

// Gain scales a block by a linear factor. A change is ramped linearly across
// the next block.
type Gain struct {
	channels int
	target   atomic.Uint64 // float64 bits
	current  float32
}

func NewGain(initial float64, channels int) *Gain {
	g := &Gain{channels: channels, current: float32(initial)}
	g.target.Store(math.Float64bits(initial))
	return g
}

// Set changes the target factor. Safe from any goroutine.
func (g *Gain) Set(v float64) { g.target.Store(math.Float64bits(v)) }

func (g *Gain) Value() float64 { return math.Float64frombits(g.target.Load()) }

func (g *Gain) Process(buf []float32, frames int) {
	to := float32(g.Value())
	n := frames * g.channels

	if to == g.current {
		if to != 1 {
			for i := range n {
				buf[i] *= to
			}
		}
		return
	}

	from := g.current
	step := (to - from) / float32(max(frames, 1))
	for f := range frames {
		k := from + step*float32(f+1)
		base := f * g.channels
		for c := range g.channels {
			buf[base+c] *= k
		}
	}
	g.current = to
}

// DBToLinear converts decibels to an amplitude factor.
func DBToLinear(db float64) float64 { return math.Pow(10, db/20) }

// LinearToDB converts an amplitude factor to decibels; 0 maps to -Inf.
func LinearToDB(v float64) float64 { return 20 * math.Log10(v) }
