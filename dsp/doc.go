// SPDX-License-Identifier: EPL-2.0

// Package dsp holds the destination effect chain: RBJ cookbook biquads in
// Direct Form II transposed, the 8-band parametric EQ built from them with
// one-pole parameter smoothing, EQ presets and a ramped master gain.
//
// Band parameters are written by the UI through atomics and a version
// counter. The producer picks them up at the start of a block and ramps
// towards them every 64 frames, so a change never clicks.
package dsp
