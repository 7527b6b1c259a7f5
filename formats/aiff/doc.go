// SPDX-License-Identifier: EPL-2.0

// Package aiff decodes AIFF files with github.com/go-audio/aiff.
//
// 16, 24 and 32-bit big-endian PCM is supported at any rate and channel
// count. Samples come out as interleaved float32 in [-1,1]. Input that is
// not an io.ReadSeeker is read into memory first.
package aiff
