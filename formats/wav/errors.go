// SPDX-License-Identifier: EPL-2.0

package wav

import "errors"

var (
	ErrNotWavFile           = errors.New("not a WAV file")
	ErrUnsupportedWavLayout = errors.New("unsupported WAV layout")
	ErrUnsupportedWavChunks = errors.New("unsupported WAV chunks")
	ErrUnsupportedEncoding  = errors.New("unsupported WAV sample encoding")
	ErrUnsupportedBitDepth  = errors.New("unsupported bit depth")
	ErrTooLarge             = errors.New("WAV data exceeds 4 GiB")
	ErrClosed               = errors.New("writer is closed")
)
