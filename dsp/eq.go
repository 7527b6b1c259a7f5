// SPDX-License-Identifier: EPL-2.0

package dsp

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ik5/audengine/audio"
)

const (
	MinGainDB    = -40.0
	MaxGainDB    = 40.0
	MinQ         = 0.1
	MaxQ         = 18.0
	MinFrequency = 20.0
	DefaultQ     = 1.0

	// SmoothingTime is the one-pole time constant for band parameters.
	SmoothingTime = 10 * time.Millisecond

	// subBlock is how many frames share one set of smoothed coefficients.
	subBlock = 64
)

// DefaultFrequencies are the centre frequencies of the default bands,
// 60 Hz doubling up to 7680 Hz.
var DefaultFrequencies = [...]float64{60, 120, 240, 480, 960, 1920, 3840, 7680}

// Band is one EQ section.
type Band struct {
	Type      FilterType
	Frequency float64
	Q         float64
	GainDB    float64
}

// fallbackBand fills NaN fields of a configured band layout.
var fallbackBand = Band{Type: Peaking, Frequency: 1000, Q: DefaultQ}

// DefaultBands returns flat peaking bands at DefaultFrequencies.
func DefaultBands() []Band {
	bands := make([]Band, len(DefaultFrequencies))
	for i, f := range DefaultFrequencies {
		bands[i] = Band{Type: Peaking, Frequency: f, Q: DefaultQ}
	}
	return bands
}

type EQOption func(*EQ)

// WithStrict makes out-of-range parameters fail instead of being clamped.
func WithStrict(strict bool) EQOption { return func(e *EQ) { e.strict = strict } }

func WithLogger(l *slog.Logger) EQOption { return func(e *EQ) { e.logger = l } }

// WithAdjustHook registers fn to run after a setter clamped a parameter or
// replaced a NaN with the band's previous value. fn runs on the caller's
// goroutine with no EQ lock held.
func WithAdjustHook(fn func(band int, requested, applied Band)) EQOption {
	return func(e *EQ) { e.onAdjust = fn }
}

// WithBands replaces the default band layout.
func WithBands(bands []Band) EQOption { return func(e *EQ) { e.initial = bands } }

// target is a band as last written by a caller. Fields are float64 bits.
type target struct {
	typ  atomic.Int32
	freq atomic.Uint64
	q    atomic.Uint64
	gain atomic.Uint64
}

func (t *target) load() Band {
	return Band{
		Type:      FilterType(t.typ.Load()),
		Frequency: math.Float64frombits(t.freq.Load()),
		Q:         math.Float64frombits(t.q.Load()),
		GainDB:    math.Float64frombits(t.gain.Load()),
	}
}

func (t *target) store(b Band) {
	t.typ.Store(int32(b.Type))
	t.freq.Store(math.Float64bits(b.Frequency))
	t.q.Store(math.Float64bits(b.Q))
	t.gain.Store(math.Float64bits(b.GainDB))
}

// section is the producer-side state of one band.
type section struct {
	typ             FilterType
	freq, q, gain   Smoother
	last            Band // last parameters that gave finite coefficients
	filter          *Biquad
	dirty, bypassed bool
}

// EQ is a cascade of biquads. Setters may be called from any goroutine;
// Process belongs to the producer goroutine. Setters publish through a
// version counter that Process checks once per block.
type EQ struct {
	fs       float64
	channels int
	strict   bool
	logger   *slog.Logger
	onAdjust func(band int, requested, applied Band)
	initial  []Band

	mu      sync.Mutex // serialises setters
	targets []target
	version atomic.Uint64

	applied  uint64
	sections []section
}

func NewEQ(sampleRate, channels int, opts ...EQOption) *EQ {
	e := &EQ{
		fs:       float64(sampleRate),
		channels: channels,
		logger:   slog.Default(),
		initial:  DefaultBands(),
	}
	for _, opt := range opts {
		opt(e)
	}

	step := float64(subBlock) / e.fs
	tau := SmoothingTime.Seconds()

	e.targets = make([]target, len(e.initial))
	e.sections = make([]section, len(e.initial))
	for i, b := range e.initial {
		b, _ = e.sanitize(b, fallbackBand)
		e.targets[i].store(b)
		e.sections[i] = section{
			typ:    b.Type,
			freq:   NewSmoother(b.Frequency, tau, step, 1e-3),
			q:      NewSmoother(b.Q, tau, step, 1e-4),
			gain:   NewSmoother(b.GainDB, tau, step, 1e-3),
			last:   b,
			filter: NewBiquad(channels),
			dirty:  true,
		}
	}
	return e
}

func (e *EQ) Len() int      { return len(e.targets) }
func (e *EQ) Channels() int { return e.channels }

// Version increases with every parameter change.
func (e *EQ) Version() uint64 { return e.version.Load() }

// Nyquist limit for band frequencies.
func (e *EQ) maxFrequency() float64 { return e.fs/2 - 1 }

// sanitize puts b into the legal ranges. NaN fields take the value of
// prev, everything else is clamped. It reports whether b had to change.
func (e *EQ) sanitize(b, prev Band) (Band, bool) {
	in := b
	if math.IsNaN(b.GainDB) {
		b.GainDB = prev.GainDB
	}
	if math.IsNaN(b.Frequency) {
		b.Frequency = prev.Frequency
	}
	if math.IsNaN(b.Q) {
		b.Q = prev.Q
	}
	b.GainDB = min(max(b.GainDB, MinGainDB), MaxGainDB)
	b.Frequency = min(max(b.Frequency, MinFrequency), e.maxFrequency())
	b.Q = min(max(b.Q, MinQ), MaxQ)
	if b.Type < Peaking || b.Type > Notch {
		b.Type = Peaking
	}
	return b, b != in
}

func (e *EQ) checkIndex(op string, i int) error {
	if i < 0 || i >= len(e.targets) {
		return audio.Errorf(audio.OutOfRange, op, "band %d of %d", i, len(e.targets))
	}
	return nil
}

// adjustment is a setter input that was clamped or had a NaN replaced.
type adjustment struct {
	band               int
	requested, applied Band
}

// prepareLocked validates b for band i against its current target. It
// fails in strict mode when b needs adjusting. e.mu must be held.
func (e *EQ) prepareLocked(op string, i int, b Band) (Band, *adjustment, error) {
	applied, changed := e.sanitize(b, e.targets[i].load())
	if !changed {
		return applied, nil, nil
	}
	if e.strict {
		return Band{}, nil, audio.Errorf(audio.OutOfRange, op,
			"band %d: %.2f Hz, Q %.2f, %.2f dB", i, b.Frequency, b.Q, b.GainDB)
	}
	e.logger.Warn("eq parameter adjusted", "band", i,
		"frequency", applied.Frequency, "q", applied.Q, "gain_db", applied.GainDB,
		"requested_frequency", b.Frequency, "requested_q", b.Q, "requested_gain_db", b.GainDB)
	return applied, &adjustment{band: i, requested: b, applied: applied}, nil
}

func (e *EQ) notify(adj []adjustment) {
	if e.onAdjust == nil {
		return
	}
	for _, a := range adj {
		e.onAdjust(a.band, a.requested, a.applied)
	}
}

// SetBand replaces all parameters of band i.
func (e *EQ) SetBand(i int, b Band) error {
	if err := e.checkIndex("set eq band", i); err != nil {
		return err
	}

	e.mu.Lock()
	adj, err := e.setLocked("set eq band", i, func(Band) Band { return b })
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.notify(adj)
	return nil
}

// SetBandGain changes only the gain of band i.
func (e *EQ) SetBandGain(i int, gainDB float64) error {
	if err := e.checkIndex("set eq band", i); err != nil {
		return err
	}

	e.mu.Lock()
	adj, err := e.setLocked("set eq band", i, func(cur Band) Band {
		cur.GainDB = gainDB
		return cur
	})
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.notify(adj)
	return nil
}

// setLocked stores edit(current target) into band i. e.mu must be held.
func (e *EQ) setLocked(op string, i int, edit func(Band) Band) ([]adjustment, error) {
	b, adj, err := e.prepareLocked(op, i, edit(e.targets[i].load()))
	if err != nil {
		return nil, err
	}
	e.targets[i].store(b)
	e.version.Add(1)
	if adj == nil {
		return nil, nil
	}
	return []adjustment{*adj}, nil
}

// Band returns the current target parameters of band i.
func (e *EQ) Band(i int) Band {
	if i < 0 || i >= len(e.targets) {
		return Band{}
	}
	return e.targets[i].load()
}

func (e *EQ) Bands() []Band {
	out := make([]Band, len(e.targets))
	for i := range e.targets {
		out[i] = e.targets[i].load()
	}
	return out
}

// SetGains applies a gain vector in one version step. Extra values are
// ignored; missing ones leave their band alone. In strict mode nothing
// changes unless every gain is in range.
func (e *EQ) SetGains(gains []float64) error {
	const op = "set eq gains"

	e.mu.Lock()
	n := min(len(gains), len(e.targets))
	next := make([]Band, n)
	var adj []adjustment
	for i := range n {
		b := e.targets[i].load()
		b.GainDB = gains[i]
		applied, a, err := e.prepareLocked(op, i, b)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		if a != nil {
			adj = append(adj, *a)
		}
		next[i] = applied
	}
	for i, b := range next {
		e.targets[i].store(b)
	}
	e.version.Add(1)
	e.mu.Unlock()

	e.notify(adj)
	return nil
}

// Reset restores the initial band layout with every gain at 0 dB.
func (e *EQ) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, b := range e.initial {
		b.GainDB = 0
		b, _ = e.sanitize(b, fallbackBand)
		e.targets[i].store(b)
	}
	e.version.Add(1)
}

// ApplyPreset sets the gains of a named preset.
func (e *EQ) ApplyPreset(name string) error {
	gains, ok := Preset(name)
	if !ok {
		return audio.Errorf(audio.OutOfRange, "apply preset", "unknown preset %q", name)
	}
	return e.SetGains(gains)
}

// Response is the combined magnitude of the target bands at f, for drawing
// curves. It does not reflect smoothing in progress.
func (e *EQ) Response(f float64) float64 {
	mag := 1.0
	for i := range e.targets {
		b := e.targets[i].load()
		c := Design(b.Type, b.Frequency, b.Q, b.GainDB, e.fs)
		if c.Valid() {
			mag *= c.Magnitude(f, e.fs)
		}
	}
	return mag
}

// Process filters frames of interleaved buf in place. Allocation free.
func (e *EQ) Process(buf []float32, frames int) {
	if v := e.version.Load(); v != e.applied {
		e.applied = v
		for i := range e.sections {
			e.sections[i].retarget(e.targets[i].load())
		}
	}

	for off := 0; off < frames; off += subBlock {
		n := min(subBlock, frames-off)
		sub := buf[off*e.channels:]
		for i := range e.sections {
			s := &e.sections[i]
			if s.step(e.fs) {
				s.filter.Process(sub, n)
			}
		}
	}
}

func (s *section) retarget(b Band) {
	if b.Type != s.typ {
		// a type change cannot be ramped
		s.typ = b.Type
		s.freq.Jump(b.Frequency)
		s.q.Jump(b.Q)
		s.gain.Jump(b.GainDB)
		s.filter.Reset()
	} else {
		s.freq.SetTarget(b.Frequency)
		s.q.SetTarget(b.Q)
		s.gain.SetTarget(b.GainDB)
	}
	s.dirty = true
}

// step advances the smoothers by one sub-block, refreshes coefficients when
// needed and reports whether the filter should run.
func (s *section) step(fs float64) bool {
	if !s.dirty {
		return !s.bypassed
	}

	f, q, g := s.freq.Step(), s.q.Step(), s.gain.Step()
	settled := s.freq.Settled() && s.q.Settled() && s.gain.Settled()

	if s.typ == Peaking && g == 0 && settled {
		// a flat peaking band is an exact identity
		s.bypassed = true
		s.dirty = false
		s.filter.Reset()
		return false
	}

	c := Design(s.typ, f, q, g, fs)
	if !c.Valid() {
		s.freq.Jump(s.last.Frequency)
		s.q.Jump(s.last.Q)
		s.gain.Jump(s.last.GainDB)
		s.filter.Reset()
		s.dirty = true
		return false
	}

	s.filter.SetCoefficients(c)
	s.last = Band{Type: s.typ, Frequency: f, Q: q, GainDB: g}
	s.bypassed = false
	s.dirty = !settled
	return true
}
