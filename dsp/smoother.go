// SPDX-License-Identifier: EPL-2.0

package dsp

import "math"

// Smoother is a one-pole lowpass on a control value, stepped once per
// sub-block. It snaps to the target once within epsilon so that a settled
// parameter stops costing coefficient updates.
type Smoother struct {
	value, target float64
	coeff         float64
	epsilon       float64
}

// NewSmoother smooths with time constant tau when stepped every step.
func NewSmoother(initial, tau, step, epsilon float64) Smoother {
	coeff := 0.0
	if tau > 0 {
		coeff = math.Exp(-step / tau)
	}
	return Smoother{value: initial, target: initial, coeff: coeff, epsilon: epsilon}
}

func (s *Smoother) Value() float64  { return s.value }
func (s *Smoother) Target() float64 { return s.target }
func (s *Smoother) Settled() bool   { return s.value == s.target }

func (s *Smoother) SetTarget(v float64) { s.target = v }

// Jump sets value and target without ramping.
func (s *Smoother) Jump(v float64) {
	s.value = v
	s.target = v
}

// Step advances one sub-block and returns the new value.
func (s *Smoother) Step() float64 {
	if s.value == s.target {
		return s.value
	}
	s.value = s.target + (s.value-s.target)*s.coeff
	if math.Abs(s.value-s.target) <= s.epsilon {
		s.value = s.target
	}
	return s.value
}
