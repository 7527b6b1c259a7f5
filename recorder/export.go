// SPDX-License-Identifier: EPL-2.0

package recorder

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/formats/wav"
	"github.com/ik5/audengine/utils"
)

// Export formats.
const (
	FormatWAV   = "wav"   // 32-bit float
	FormatWAV16 = "wav16" // 16-bit PCM
	FormatWAV24 = "wav24" // 24-bit PCM
	FormatFLAC  = "flac"
)

// Formats lists the formats Save accepts.
func Formats() []string { return []string{FormatWAV, FormatWAV16, FormatWAV24} }

// Export writes pcm to w. Formats that need seeking (wav24) are rejected;
// use Save for those.
func Export(w io.Writer, pcm *audio.PCM, format string) error {
	const op = "export recording"

	switch strings.ToLower(format) {
	case FormatWAV:
		if err := wav.WriteFloat32(w, pcm); err != nil {
			return audio.E(audio.IoError, op, err)
		}
		return nil
	case FormatWAV16:
		ints := make([]int16, len(pcm.Samples))
		utils.FloatsToInt16(ints, pcm.Samples)
		if err := wav.WriteWAV16(w, pcm.SampleRate, pcm.Channels, ints); err != nil {
			return audio.E(audio.IoError, op, err)
		}
		return nil
	default:
		return audio.Errorf(audio.UnsupportedFormat, op, "%q", format)
	}
}

// Save writes the captured audio to path. The recorder must not be
// Recording.
func (r *Recorder) Save(path, format string) error {
	const op = "save recording"

	format = strings.ToLower(format)
	switch format {
	case FormatWAV, FormatWAV16, FormatWAV24:
	default:
		return audio.Errorf(audio.UnsupportedFormat, op, "%q", format)
	}

	pcm, err := r.Samples()
	if err != nil {
		return err
	}
	if pcm.Frames() == 0 {
		return audio.Errorf(audio.InvalidState, op, "nothing recorded")
	}

	if err := SavePCM(path, pcm, format); err != nil {
		return err
	}
	r.logger.Info("recording saved", "path", path, "format", format, "duration", pcm.Duration())
	return nil
}

// SavePCM writes pcm to a new file at path.
func SavePCM(path string, pcm *audio.PCM, format string) (err error) {
	const op = "save recording"

	f, err := os.Create(path)
	if err != nil {
		return audio.E(audio.IoError, op, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = audio.E(audio.IoError, op, cerr)
		}
	}()

	if strings.ToLower(format) == FormatWAV24 {
		if err := wav.Encode(f, pcm, 24); err != nil {
			return audio.E(audio.IoError, op, fmt.Errorf("%s: %w", path, err))
		}
		return nil
	}
	return Export(f, pcm, format)
}
