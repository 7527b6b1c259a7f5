// SPDX-License-Identifier: EPL-2.0

// Package audengine loads audio files into the engine's sample format.
//
// The engine itself lives in sub-packages: engine is the façade a UI talks
// to, router mixes sources into destinations, dsp, meter and analyser
// process and observe the signal, and backend with its adapters talks to
// devices. This package is the entry point for files:
//
//	pcm, err := audengine.LoadFile("take.mp3", audengine.WithSampleRate(48000))
//	if err != nil {
//	    return err
//	}
//	// pcm.Samples is interleaved float32 at 48 kHz
//
// # Supported Formats
//
// Decoders are looked up by file extension in a registry:
//   - WAV (PCM 16/24/32-bit and 32-bit float) via formats/wav
//   - MP3 via formats/mp3
//   - Ogg Vorbis via formats/vorbis
//   - AIFF (PCM 16/24/32-bit) via formats/aiff
//
// Other formats can be added with Registry().Register.
//
// # Sample Rate Conversion
//
// Decoded audio is converted to the requested rate with the windowed-sinc
// resampler from github.com/oov/audio, one channel at a time.
package audengine
