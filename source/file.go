// SPDX-License-Identifier: EPL-2.0

package source

import (
	"sync/atomic"
	"time"

	"github.com/ik5/audengine/audio"
)

const noSeek = -1

// File plays a decoded buffer from a cursor.
type File struct {
	pcm    *audio.PCM
	frames int64

	pos  atomic.Int64 // next frame to play
	seek atomic.Int64 // pending target frame, or noSeek
	loop atomic.Bool
}

func NewFile(pcm *audio.PCM, loop bool) (*File, error) {
	if err := pcm.Validate(); err != nil {
		return nil, audio.E(audio.DecoderError, "new file source", err)
	}

	f := &File{pcm: pcm, frames: int64(pcm.Frames())}
	f.seek.Store(noSeek)
	f.loop.Store(loop)
	return f, nil
}

func (f *File) Channels() int   { return f.pcm.Channels }
func (f *File) SampleRate() int { return f.pcm.SampleRate }

// SetLoop toggles wrapping at the end of the buffer.
func (f *File) SetLoop(loop bool) { f.loop.Store(loop) }

// Duration is the total length of the buffer.
func (f *File) Duration() time.Duration { return f.pcm.Duration() }

// Position is the playback cursor as of the last block, or the target of a
// seek that no block has applied yet.
func (f *File) Position() time.Duration {
	frame := f.seek.Load()
	if frame == noSeek {
		frame = f.pos.Load()
	}
	return audio.FramesToDuration(int(frame), f.pcm.SampleRate)
}

// Seek queues a cursor move applied at the start of the next block. The
// target is clamped to [0, Duration] and the clamped value is returned.
func (f *File) Seek(d time.Duration) time.Duration {
	frame := int64(audio.DurationToFrames(d, f.pcm.SampleRate))
	frame = min(max(frame, 0), f.frames)
	f.seek.Store(frame)
	return audio.FramesToDuration(int(frame), f.pcm.SampleRate)
}

// Finished reports whether a non-looping file reached its end.
func (f *File) Finished() bool {
	return !f.loop.Load() && f.pos.Load() >= f.frames
}

func (f *File) Fill(out []float32, frames int) (int, bool) {
	if target := f.seek.Swap(noSeek); target != noSeek {
		f.pos.Store(target)
	}

	ch := f.pcm.Channels
	pos := f.pos.Load()
	loop := f.loop.Load()
	written := 0

	for written < frames {
		if pos >= f.frames {
			if !loop || f.frames == 0 {
				break
			}
			pos = 0
		}
		n := min(int64(frames-written), f.frames-pos)
		copy(out[written*ch:], f.pcm.Samples[pos*int64(ch):(pos+n)*int64(ch)])
		written += int(n)
		pos += n
	}

	clear(out[written*ch : frames*ch])
	f.pos.Store(pos)

	return written, !loop && pos >= f.frames
}
