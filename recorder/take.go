// SPDX-License-Identifier: EPL-2.0

package recorder

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ik5/audengine/audio"
)

// Take is one finished recording.
type Take struct {
	ID         uuid.UUID
	Label      string
	SourceTag  string
	Duration   time.Duration
	Peak       float32
	RMS        float32
	ClipEvents uint64
	Timestamp  time.Time
	Thumbnail  []float32 // mono overview in [-1,1]

	PCM *audio.PCM
}

func (r *Recorder) newTake(label string, samples []float32, now time.Time) *Take {
	pcm := &audio.PCM{Samples: samples, SampleRate: r.cfg.SampleRate, Channels: r.cfg.Channels}
	if label == "" {
		label = "Take " + now.Format("2006-01-02 15:04:05")
	}

	var peak float32
	var sum float64
	for _, v := range samples {
		peak = max(peak, float32(math.Abs(float64(v))))
		sum += float64(v) * float64(v)
	}

	return &Take{
		ID:         uuid.New(),
		Label:      label,
		SourceTag:  r.cfg.SourceTag,
		Duration:   pcm.Duration(),
		Peak:       peak,
		RMS:        float32(math.Sqrt(sum / float64(max(len(samples), 1)))),
		ClipEvents: r.meter.ClipEvents(),
		Timestamp:  r.startedAt,
		Thumbnail:  Thumbnail(pcm, ThumbnailPoints),
		PCM:        pcm,
	}
}

// Thumbnail reduces pcm to at most points mono values. Each point is the
// sample of largest magnitude in its bucket, and the result is scaled so the
// loudest point is ±1.
func Thumbnail(pcm *audio.PCM, points int) []float32 {
	frames := pcm.Frames()
	if frames == 0 || points <= 0 {
		return nil
	}
	points = min(points, frames)

	mono := make([]float32, frames)
	audio.Downmix(mono, pcm.Samples, pcm.Channels)

	out := make([]float32, points)
	var loudest float32
	for p := range points {
		lo := p * frames / points
		hi := (p + 1) * frames / points

		var v float32
		for _, s := range mono[lo:hi] {
			if math.Abs(float64(s)) > math.Abs(float64(v)) {
				v = s
			}
		}
		out[p] = v
		loudest = max(loudest, float32(math.Abs(float64(v))))
	}

	if loudest > 0 {
		for i := range out {
			out[i] /= loudest
		}
	}
	return out
}
