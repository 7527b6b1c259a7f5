// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/ik5/audengine"
	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/dsp"
	"github.com/ik5/audengine/meter"
	"github.com/ik5/audengine/router"
	"github.com/ik5/audengine/source"
)

// PlaybackState is the logical state of the generator and file voices.
type PlaybackState int32

const (
	PlaybackStopped PlaybackState = iota
	PlaybackPlaying
	PlaybackPaused
)

func (s PlaybackState) String() string {
	switch s {
	case PlaybackStopped:
		return "stopped"
	case PlaybackPlaying:
		return "playing"
	case PlaybackPaused:
		return "paused"
	}
	return fmt.Sprintf("playback(%d)", int(s))
}

// voice is a playable source attached to the output. While paused it emits
// silence and its source does not advance.
type voice struct {
	src    router.Source
	id     router.SourceID
	paused atomic.Bool
}

func (v *voice) Channels() int { return v.src.Channels() }

func (v *voice) Fill(out []float32, frames int) (int, bool) {
	if v.paused.Load() {
		clear(out[:frames*v.src.Channels()])
		return frames, false
	}
	return v.src.Fill(out, frames)
}

func (m *Manager) PlaybackState() PlaybackState { return PlaybackState(m.playback.Load()) }

// startVoiceLocked replaces *slot with a voice for src routed to the
// output at unity gain.
func (m *Manager) startVoiceLocked(slot **voice, src router.Source) error {
	m.removeVoiceLocked(slot)

	v := &voice{src: src}
	id, err := m.router.AddSource(v)
	if err != nil {
		return err
	}
	if _, err := m.router.CreateRoute(id, m.outDest, 1); err != nil {
		_ = m.router.RemoveSource(id)
		return err
	}
	v.id = id
	*slot = v

	for _, other := range []*voice{m.gen, m.file} {
		if other != nil {
			other.paused.Store(false)
		}
	}
	m.playback.Store(int32(PlaybackPlaying))
	return nil
}

func (m *Manager) requireOutputLocked(op string) error {
	if err := m.checkOpenLocked(op); err != nil {
		return err
	}
	if m.out == nil {
		return audio.E(audio.InvalidState, op, ErrNoOutput)
	}
	return nil
}

// PlaySignalGenerator starts a test signal on the open output, replacing
// any signal already playing.
func (m *Manager) PlaySignalGenerator(p source.GeneratorParams, loop bool) error {
	const op = "play signal generator"

	gen, err := source.NewGenerator(p, m.cfg.Stream.SampleRate, m.cfg.Stream.Channels, loop)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOutputLocked(op); err != nil {
		return err
	}
	if err := m.startVoiceLocked(&m.gen, gen); err != nil {
		return m.emitError("Cannot start signal", err)
	}

	m.logger.Info("signal started", "waveform", p.Waveform.String(), "frequency", p.Frequency, "amplitude", p.Amplitude, "loop", loop)
	return nil
}

// StopSignalGenerator removes the test signal. Stopping nothing is not an
// error.
func (m *Manager) StopSignalGenerator() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != nil {
		m.removeVoiceLocked(&m.gen)
		m.logger.Info("signal stopped")
	}
	return nil
}

// PlayFile decodes path, converts it to the stream rate and plays it,
// replacing any file already playing.
func (m *Manager) PlayFile(path string, loop bool) error {
	const op = "play file"

	pcm, err := audengine.LoadFile(path, audengine.WithSampleRate(m.cfg.Stream.SampleRate))
	if err != nil {
		return m.emitError("Cannot open file", err)
	}
	src, err := source.NewFile(pcm, loop)
	if err != nil {
		return m.emitError("Cannot open file", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOutputLocked(op); err != nil {
		return err
	}
	if err := m.startVoiceLocked(&m.file, src); err != nil {
		return m.emitError("Cannot play file", err)
	}
	m.fileSrc = src

	m.logger.Info("file playback started", "path", path, "duration", src.Duration(), "channels", pcm.Channels, "loop", loop)
	return nil
}

func (m *Manager) PausePlayback() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st := m.PlaybackState(); st != PlaybackPlaying {
		return audio.Errorf(audio.InvalidState, "pause playback", "playback is %s", st)
	}
	for _, v := range []*voice{m.gen, m.file} {
		if v != nil {
			v.paused.Store(true)
		}
	}
	m.playback.Store(int32(PlaybackPaused))
	return nil
}

func (m *Manager) ResumePlayback() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st := m.PlaybackState(); st != PlaybackPaused {
		return audio.Errorf(audio.InvalidState, "resume playback", "playback is %s", st)
	}
	for _, v := range []*voice{m.gen, m.file} {
		if v != nil {
			v.paused.Store(false)
		}
	}
	m.playback.Store(int32(PlaybackPlaying))
	return nil
}

// StopPlayback removes the signal and the file.
func (m *Manager) StopPlayback() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeVoiceLocked(&m.gen)
	m.removeVoiceLocked(&m.file)
	m.fileSrc = nil
	return nil
}

// PlaybackPosition is the file cursor, or zero when no file is loaded.
func (m *Manager) PlaybackPosition() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fileSrc == nil {
		return 0
	}
	return m.fileSrc.Position()
}

// Seek moves the file cursor at the next block boundary. Positions beyond
// the file are clamped to its ends.
func (m *Manager) Seek(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fileSrc == nil {
		return audio.Errorf(audio.InvalidState, "seek", "no file loaded")
	}
	if got := m.fileSrc.Seek(d); got != d {
		m.logger.Debug("seek clamped", "position", got, "requested_position", d)
	}
	return nil
}

// SetMasterVolume sets the output gain. Values outside [0,1] are clamped
// with a warning, or rejected when the config asks for strict parameters.
func (m *Manager) SetMasterVolume(v float64) error {
	const op = "set master volume"

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return audio.Errorf(audio.OutOfRange, op, "volume %v", v)
	}
	if v < 0 || v > 1 {
		if m.cfg.EQStrict {
			return audio.Errorf(audio.OutOfRange, op, "volume %v outside [0,1]", v)
		}
		clamped := min(max(v, 0), 1)
		m.logger.Warn("master volume clamped", "volume", clamped, "requested_volume", v)
		m.emit(Event{
			Kind:    EventWarning,
			Err:     audio.OutOfRange,
			Title:   "Volume clamped",
			Message: fmt.Sprintf("%v is outside [0,1], using %v", v, clamped),
		})
		v = clamped
	}

	m.volume.Set(v)
	return nil
}

func (m *Manager) MasterVolume() float64 { return m.volume.Value() }

// SetEQBand changes the gain of band i.
func (m *Manager) SetEQBand(i int, gainDB float64) error { return m.eq.SetBandGain(i, gainDB) }

// SetEQBandParams replaces every parameter of band i.
func (m *Manager) SetEQBandParams(i int, b dsp.Band) error { return m.eq.SetBand(i, b) }

// eqAdjusted reports a clamped or NaN EQ parameter to the UI.
func (m *Manager) eqAdjusted(band int, requested, applied dsp.Band) {
	m.emit(Event{
		Kind:  EventWarning,
		Err:   audio.OutOfRange,
		Title: "EQ band adjusted",
		Message: fmt.Sprintf("band %d: requested %.1f Hz, Q %.2f, %.1f dB; using %.1f Hz, Q %.2f, %.1f dB",
			band+1, requested.Frequency, requested.Q, requested.GainDB,
			applied.Frequency, applied.Q, applied.GainDB),
	})
}

func (m *Manager) ResetEQ()                      { m.eq.Reset() }
func (m *Manager) ApplyPreset(name string) error { return m.eq.ApplyPreset(name) }
func (m *Manager) EQBands() []dsp.Band           { return m.eq.Bands() }

// FrequencyData is the latest smoothed spectrum of the output in dBFS, one
// value per bin.
func (m *Manager) FrequencyData() []float32 { return m.analyser.FrequencyData() }

// Level is the output meter of channel ch with decay applied up to now.
func (m *Manager) Level(ch int) meter.Level {
	m.meter.Decay()
	return m.meter.Level(ch)
}
