// SPDX-License-Identifier: EPL-2.0

// Package audio holds the data model shared by every engine package.
//
// # Sample Format
//
// Audio samples are interleaved float32 in the range [-1.0, 1.0], channel
// major per frame (L,R,L,R,...). Conversion to and from a device's native
// format only happens inside backend adapters.
//
// # Decoding
//
// Decoders implement Decoder and return a Source, a pull stream of samples:
//
//	type Source interface {
//	    SampleRate() int
//	    Channels() int
//	    ReadSamples(dst []float32) (int, error)
//	    BufSize() int
//	    Close() error
//	}
//
// ReadAll drains a Source into a PCM buffer, which is what file playback
// consumes. The Registry maps format keys to decoders:
//
//	registry := audio.NewRegistry()
//	registry.Register("wav", wav.Decoder{})
//	decoder, _ := registry.Get(".WAV")
//
// # Channel Mixing
//
// MonoMixer and Downmix average channels into mono; MapChannels adds a block
// into a buffer with a different channel count, which is how the router sums
// sources into destinations.
//
// # Errors
//
// Every fallible engine operation returns an *Error tagged with a Kind.
// Compare kinds with errors.Is against the sentinels:
//
//	if errors.Is(err, audio.ErrInvalidState) {
//	    // pause from Idle, and so on
//	}
package audio
