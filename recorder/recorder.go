// SPDX-License-Identifier: EPL-2.0

// Package recorder captures interleaved input into a bounded buffer and
// turns finished recordings into takes.
//
// Write is called by the producer goroutine for every block of input. The
// control methods (Start, Pause, Resume, Stop) may be called from any
// goroutine; they are serialised among themselves and synchronise with an
// in-flight Write without blocking it.
package recorder

import (
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/meter"
)

const (
	DefaultMaxDuration = 10 * time.Minute
	ThumbnailPoints    = 256
)

type Config struct {
	SampleRate  int
	Channels    int
	MaxDuration time.Duration

	// SourceTag names the input, usually the device name.
	SourceTag string

	Logger *slog.Logger
	Now    func() time.Time
}

// Recorder is the record state machine.
type Recorder struct {
	cfg       Config
	logger    *slog.Logger
	capFrames int64

	buf      []float32
	total    atomic.Int64 // samples captured while Recording, including overwritten ones
	state    atomic.Int32
	inFlight atomic.Bool
	meter    *meter.Meter

	monitorMode atomic.Int32
	monitorGain atomic.Uint64 // float64 bits

	mu          sync.Mutex // serialises control methods
	startedAt   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
	stoppedAt   time.Time
	takes       []*Take
}

func New(cfg Config) (*Recorder, error) {
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, audio.Errorf(audio.OutOfRange, "new recorder", "%d Hz, %d channels", cfg.SampleRate, cfg.Channels)
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	capFrames := int64(audio.DurationToFrames(cfg.MaxDuration, cfg.SampleRate))
	if capFrames <= 0 {
		return nil, audio.Errorf(audio.OutOfRange, "new recorder", "max duration %v", cfg.MaxDuration)
	}

	r := &Recorder{
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "recorder"),
		capFrames: capFrames,
		buf:       make([]float32, capFrames*int64(cfg.Channels)),
		meter:     meter.New(cfg.Channels),
	}
	r.monitorGain.Store(math.Float64bits(1))
	return r, nil
}

func (r *Recorder) State() State     { return State(r.state.Load()) }
func (r *Recorder) Channels() int    { return r.cfg.Channels }
func (r *Recorder) SampleRate() int  { return r.cfg.SampleRate }
func (r *Recorder) CapFrames() int64 { return r.capFrames }

// TotalSamples counts every sample captured while Recording.
func (r *Recorder) TotalSamples() int64 { return r.total.Load() }

// Meter follows the captured signal only.
func (r *Recorder) Meter() *meter.Meter { return r.meter }

// SetSourceTag changes the tag stamped on the next take.
func (r *Recorder) SetSourceTag(tag string) {
	r.mu.Lock()
	r.cfg.SourceTag = tag
	r.mu.Unlock()
}

// Write appends frames of interleaved buf while Recording and ignores them
// otherwise. Allocation free; only the producer may call it.
func (r *Recorder) Write(buf []float32, frames int) {
	r.inFlight.Store(true)
	defer r.inFlight.Store(false)

	if State(r.state.Load()) != Recording || frames <= 0 {
		return
	}

	ch := int64(r.cfg.Channels)
	in := buf[:int64(frames)*ch]
	pos := (r.total.Load() / ch) % r.capFrames

	for len(in) > 0 {
		n := copy(r.buf[pos*ch:], in)
		in = in[n:]
		pos = 0
	}
	r.meter.Update(buf, frames)
	r.total.Add(int64(frames) * ch)
}

// quiesce waits for a Write that may have seen the old state.
func (r *Recorder) quiesce() {
	for r.inFlight.Load() {
		runtime.Gosched()
	}
}

func (r *Recorder) invalid(op string, from State) error {
	return audio.Errorf(audio.InvalidState, op, "recorder is %s", from)
}

// Start begins a new recording from Idle or Stopped. The buffer and meter
// are cleared.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.State()
	if st != Idle && st != Stopped {
		return r.invalid("start recording", st)
	}

	r.total.Store(0)
	r.meter.Reset()
	r.startedAt = r.cfg.Now()
	r.pausedTotal = 0
	r.state.Store(int32(Recording))

	r.logger.Info("recording started", "max_duration", r.cfg.MaxDuration)
	return nil
}

func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st := r.State(); st != Recording {
		return r.invalid("pause recording", st)
	}
	r.state.Store(int32(Paused))
	r.quiesce()
	r.pausedAt = r.cfg.Now()
	return nil
}

func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st := r.State(); st != Paused {
		return r.invalid("resume recording", st)
	}
	r.pausedTotal += r.cfg.Now().Sub(r.pausedAt)
	r.state.Store(int32(Recording))
	return nil
}

// Stop ends the recording. When anything was captured the new take is
// returned and kept; otherwise the take is nil.
func (r *Recorder) Stop(label string) (*Take, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.State()
	if st != Recording && st != Paused {
		return nil, r.invalid("stop recording", st)
	}
	now := r.cfg.Now()
	if st == Paused {
		r.pausedTotal += now.Sub(r.pausedAt)
	}
	r.state.Store(int32(Stopped))
	r.quiesce()
	r.stoppedAt = now

	if r.total.Load() == 0 {
		r.logger.Info("recording stopped without input")
		return nil, nil
	}

	samples := r.linear()
	if dropped := r.total.Load()/int64(r.cfg.Channels) - r.capFrames; dropped > 0 {
		r.logger.Warn("recording exceeded the buffer, oldest audio dropped",
			"dropped", audio.FramesToDuration(int(dropped), r.cfg.SampleRate))
	}

	take := r.newTake(label, samples, now)
	r.takes = append(r.takes, take)
	r.logger.Info("recording stopped", "take", take.ID, "duration", take.Duration, "clips", take.ClipEvents)
	return take, nil
}

// Elapsed is the wall time spent Recording, excluding pauses.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.State() {
	case Recording:
		return r.cfg.Now().Sub(r.startedAt) - r.pausedTotal
	case Paused:
		return r.pausedAt.Sub(r.startedAt) - r.pausedTotal
	case Stopped:
		return r.stoppedAt.Sub(r.startedAt) - r.pausedTotal
	default:
		return 0
	}
}

// Duration is the length of the audio currently held in the buffer.
func (r *Recorder) Duration() time.Duration {
	frames := min(r.total.Load()/int64(r.cfg.Channels), r.capFrames)
	return audio.FramesToDuration(int(frames), r.cfg.SampleRate)
}

// linear copies the buffer out oldest first. The caller must make sure no
// Write is running.
func (r *Recorder) linear() []float32 {
	ch := int64(r.cfg.Channels)
	frames := r.total.Load() / ch

	if frames <= r.capFrames {
		return append([]float32(nil), r.buf[:frames*ch]...)
	}

	start := (frames % r.capFrames) * ch
	out := make([]float32, 0, len(r.buf))
	out = append(out, r.buf[start:]...)
	return append(out, r.buf[:start]...)
}

// Samples returns the captured audio oldest first. It is not available
// while Recording.
func (r *Recorder) Samples() (*audio.PCM, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.State()
	if st == Recording {
		return nil, r.invalid("read recording", st)
	}
	return &audio.PCM{
		Samples:    r.linear(),
		SampleRate: r.cfg.SampleRate,
		Channels:   r.cfg.Channels,
	}, nil
}

// Takes lists every take so far, oldest first.
func (r *Recorder) Takes() []*Take {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Take(nil), r.takes...)
}

// SetMonitoring changes the monitoring mode. Gain is clamped to [0,1].
func (r *Recorder) SetMonitoring(mode MonitorMode, gain float64) error {
	if mode < MonitorOff || mode > MonitorRouted {
		return audio.Errorf(audio.OutOfRange, "set monitoring", "mode %d", mode)
	}
	if math.IsNaN(gain) {
		return audio.Errorf(audio.OutOfRange, "set monitoring", "gain %v", gain)
	}
	if gain < 0 || gain > 1 {
		clamped := min(max(gain, 0), 1)
		r.logger.Warn("monitoring gain clamped", "gain", clamped, "requested_gain", gain)
		gain = clamped
	}

	r.monitorGain.Store(math.Float64bits(gain))
	r.monitorMode.Store(int32(mode))
	return nil
}

func (r *Recorder) Monitoring() (MonitorMode, float64) {
	return MonitorMode(r.monitorMode.Load()), math.Float64frombits(r.monitorGain.Load())
}
