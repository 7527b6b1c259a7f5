// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteWAV16 writes interleaved 16-bit PCM. It needs no seeking, so it works
// on pipes and network streams.
func WriteWAV16(w io.Writer, sampleRate, channels int, samples []int16) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("%w: %d channels at %d Hz", ErrUnsupportedWavLayout, channels, sampleRate)
	}
	size, err := dataBytes(len(samples), 2)
	if err != nil {
		return err
	}

	var hdr [headerSize]byte
	putHeader(hdr[:], formatPCM, channels, sampleRate, 16, size)
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w", err)
	}
	if len(samples) == 0 {
		return nil
	}

	buf := make([]byte, min(len(samples), chunkSamples)*2)
	for i := 0; i < len(samples); i += chunkSamples {
		chunk := samples[i:min(i+chunkSamples, len(samples))]
		for j, s := range chunk {
			binary.LittleEndian.PutUint16(buf[j*2:], uint16(s))
		}
		if _, err := w.Write(buf[:len(chunk)*2]); err != nil {
			return fmt.Errorf("%w", err)
		}
	}
	return nil
}
