// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/transforms"
	gowav "github.com/go-audio/wav"

	"github.com/ik5/audengine/audio"
)

// Encode writes pcm as integer PCM at bitDepth (16 or 24) with the go-audio
// encoder. Samples are clipped to [-1,1] before scaling.
func Encode(ws io.WriteSeeker, pcm *audio.PCM, bitDepth int) error {
	if err := pcm.Validate(); err != nil {
		return err
	}
	if bitDepth != 16 && bitDepth != 24 {
		return fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}

	enc := gowav.NewEncoder(ws, pcm.SampleRate, bitDepth, pcm.Channels, formatPCM)
	format := &goaudio.Format{NumChannels: pcm.Channels, SampleRate: pcm.SampleRate}

	frames := chunkSamples / pcm.Channels
	chunk := make([]float32, frames*pcm.Channels)
	for off := 0; off < len(pcm.Samples); off += len(chunk) {
		n := copy(chunk, pcm.Samples[off:])
		for i, v := range chunk[:n] {
			chunk[i] = min(max(v, -1), 1)
		}

		buf := &goaudio.Float32Buffer{Format: format, Data: chunk[:n], SourceBitDepth: bitDepth}
		if err := transforms.PCMScaleF32(buf, bitDepth); err != nil {
			return fmt.Errorf("scale samples: %w", err)
		}
		if err := enc.Write(buf.AsIntBuffer()); err != nil {
			return fmt.Errorf("encode samples: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("close encoder: %w", err)
	}
	return nil
}
