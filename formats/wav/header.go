// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	formatPCM        = 1
	formatIEEEFloat  = 3
	formatExtensible = 0xFFFE

	headerSize = 44

	// unknownSize marks a data chunk whose length was never patched.
	unknownSize = -1
)

type header struct {
	format        uint16
	channels      int
	sampleRate    int
	bitsPerSample int
	dataSize      int64 // bytes, unknownSize when open-ended
}

// readHeader walks the RIFF chunks up to the start of the data chunk.
// Unknown chunks are skipped, including their pad byte.
func readHeader(r io.Reader) (header, error) {
	var h header

	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return h, fmt.Errorf("%w: %w", ErrNotWavFile, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return h, ErrNotWavFile
	}

	haveFmt := false
	var chunk [8]byte
	for {
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return h, fmt.Errorf("%w: no data chunk: %w", ErrUnsupportedWavChunks, err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return h, fmt.Errorf("%w: fmt chunk of %d bytes", ErrUnsupportedWavLayout, size)
			}
			body := make([]byte, size+size&1)
			if _, err := io.ReadFull(r, body); err != nil {
				return h, fmt.Errorf("%w: %w", ErrUnsupportedWavLayout, err)
			}
			h.format = binary.LittleEndian.Uint16(body[0:2])
			h.channels = int(binary.LittleEndian.Uint16(body[2:4]))
			h.sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			h.bitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			if h.format == formatExtensible && size >= 26 {
				// the sub-format GUID starts with the real format tag
				h.format = binary.LittleEndian.Uint16(body[24:26])
			}
			if h.channels <= 0 || h.sampleRate <= 0 {
				return h, fmt.Errorf("%w: %d channels at %d Hz", ErrUnsupportedWavLayout, h.channels, h.sampleRate)
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return h, fmt.Errorf("%w: data before fmt", ErrUnsupportedWavLayout)
			}
			h.dataSize = size
			if size == 0 || size == math.MaxUint32 {
				h.dataSize = unknownSize
			}
			return h, nil

		default:
			if _, err := io.CopyN(io.Discard, r, size+size&1); err != nil {
				return h, fmt.Errorf("%w: %s: %w", ErrUnsupportedWavChunks, id, err)
			}
		}
	}
}

// putHeader writes the canonical 44 byte header.
func putHeader(dst []byte, format uint16, channels, sampleRate, bits int, dataSize uint32) {
	blockAlign := channels * bits / 8

	copy(dst[0:4], "RIFF")
	binary.LittleEndian.PutUint32(dst[4:8], 36+dataSize)
	copy(dst[8:12], "WAVE")

	copy(dst[12:16], "fmt ")
	binary.LittleEndian.PutUint32(dst[16:20], 16)
	binary.LittleEndian.PutUint16(dst[20:22], format)
	binary.LittleEndian.PutUint16(dst[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(dst[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(dst[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(dst[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(dst[34:36], uint16(bits))

	copy(dst[36:40], "data")
	binary.LittleEndian.PutUint32(dst[40:44], dataSize)
}

func dataBytes(samples, bytesPerSample int) (uint32, error) {
	n := int64(samples) * int64(bytesPerSample)
	if n > math.MaxUint32-36 {
		return 0, ErrTooLarge
	}
	return uint32(n), nil
}
