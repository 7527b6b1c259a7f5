// SPDX-License-Identifier: EPL-2.0

// Package wav reads and writes RIFF/WAVE files.
//
// # Reading
//
// Decoder handles 16, 24 and 32-bit integer PCM through go-audio/wav, and
// 32-bit IEEE float directly. Unknown chunks before the data chunk are
// skipped.
//
//	pcm, err := wav.ReadPCM(file)
//
// # Writing
//
// WriteFloat32 is the lossless format used for recordings: format tag 3,
// 32 bits per sample, a 16 byte fmt chunk. FloatWriter streams the same
// format to disk and patches the header on Close.
//
// WriteWAV16 writes 16-bit PCM to any io.Writer. Encode goes through the
// go-audio encoder for 16 and 24-bit PCM and needs an io.WriteSeeker.
//
// Header problems are reported with the sentinels in errors.go wrapped in an
// audio.DecoderError:
//
//	if errors.Is(err, wav.ErrNotWavFile) {
//	    // try another decoder
//	}
package wav
