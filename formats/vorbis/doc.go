// SPDX-License-Identifier: EPL-2.0

// Package vorbis decodes Ogg Vorbis with github.com/jfreymuth/oggvorbis.
//
// Vorbis decodes to float natively, so samples are passed through without
// conversion.
package vorbis
