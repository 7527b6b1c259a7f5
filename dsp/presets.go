// SPDX-License-Identifier: EPL-2.0

package dsp

import (
	"slices"
	"strings"
)

// presets are gain vectors over the eight default bands, in dB.
var presets = map[string][]float64{
	"flat":       {0, 0, 0, 0, 0, 0, 0, 0},
	"bass":       {6, 5, 4, 2, 0, 0, 0, 0},
	"treble":     {0, 0, 0, 0, 1, 3, 5, 6},
	"vocal":      {-2, -1, 0, 2, 4, 4, 2, 0},
	"electronic": {5, 4, 1, 0, -2, 2, 4, 5},
}

// Preset returns a copy of the named gain vector. Names are
// case-insensitive; "bass boost" and "treble boost" are accepted too.
func Preset(name string) ([]float64, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimSuffix(strings.TrimSuffix(name, " boost"), "-boost")

	gains, ok := presets[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(gains), true
}

// Presets lists the preset names in sorted order.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
