// SPDX-License-Identifier: EPL-2.0

package source

import (
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/ik5/audengine/audio"
)

// Waveform selects the generator's signal.
type Waveform int

const (
	Sine Waveform = iota
	Square
	Sawtooth
	Sweep
	Impulse
	WhiteNoise
	PinkNoise
	MultiTone
)

var waveformNames = [...]string{
	Sine:       "sine",
	Square:     "square",
	Sawtooth:   "sawtooth",
	Sweep:      "sweep",
	Impulse:    "impulse",
	WhiteNoise: "white",
	PinkNoise:  "pink",
	MultiTone:  "multitone",
}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveformNames) {
		return fmt.Sprintf("waveform(%d)", int(w))
	}
	return waveformNames[w]
}

func ParseWaveform(s string) (Waveform, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for w, name := range waveformNames {
		if name == s {
			return Waveform(w), nil
		}
	}
	switch s {
	case "saw":
		return Sawtooth, nil
	case "noise":
		return WhiteNoise, nil
	}
	return Sine, audio.Errorf(audio.OutOfRange, "parse waveform", "unknown waveform %q", s)
}

// Tone is one partial of a multi-tone signal.
type Tone struct {
	Ratio     float64 // multiple of the fundamental
	Amplitude float64 // linear, relative to GeneratorParams.Amplitude
}

// DefaultTones is a fundamental with two falling harmonics.
var DefaultTones = []Tone{{1, 1}, {2, 0.5}, {3, 0.25}}

// GeneratorParams describes a test signal.
type GeneratorParams struct {
	Waveform  Waveform
	Frequency float64 // Hz
	Amplitude float64 // linear peak, 0..1
	Phase     float64 // radians
	DutyCycle float64 // square wave high fraction; 0 means 0.5

	SweepStart float64 // Hz
	SweepEnd   float64 // Hz

	// Duration bounds the signal. Zero means endless, except for sweeps,
	// which need a length to interpolate over.
	Duration time.Duration
	// Delay is the impulse position in frames from the start.
	Delay int
	// Seed makes noise reproducible.
	Seed uint64
	// Tones are the multi-tone partials; DefaultTones when empty.
	Tones []Tone
}

// AmplitudeFromDBFS converts a level in dBFS to a linear amplitude.
func AmplitudeFromDBFS(db float64) float64 { return math.Pow(10, db/20) }

// Validate checks the parameters against the stream rate.
func (p GeneratorParams) Validate(sampleRate int) error {
	const op = "validate generator"
	nyquist := float64(sampleRate) / 2

	if p.Amplitude < 0 || p.Amplitude > 1 || math.IsNaN(p.Amplitude) {
		return audio.Errorf(audio.OutOfRange, op, "amplitude %v outside [0,1]", p.Amplitude)
	}
	if p.Duration < 0 {
		return audio.Errorf(audio.OutOfRange, op, "negative duration %v", p.Duration)
	}

	switch p.Waveform {
	case Sine, Square, Sawtooth, MultiTone:
		if p.Frequency <= 0 || p.Frequency >= nyquist {
			return audio.Errorf(audio.OutOfRange, op, "frequency %v Hz outside (0, %v)", p.Frequency, nyquist)
		}
	case Sweep:
		if p.SweepStart <= 0 || p.SweepEnd <= 0 || p.SweepStart >= nyquist || p.SweepEnd >= nyquist {
			return audio.Errorf(audio.OutOfRange, op, "sweep %v..%v Hz outside (0, %v)", p.SweepStart, p.SweepEnd, nyquist)
		}
		if p.Duration == 0 {
			return audio.Errorf(audio.OutOfRange, op, "sweep needs a duration")
		}
	case Impulse:
		if p.Delay < 0 {
			return audio.Errorf(audio.OutOfRange, op, "negative impulse delay %d", p.Delay)
		}
	case WhiteNoise, PinkNoise:
	default:
		return audio.Errorf(audio.OutOfRange, op, "unknown waveform %d", int(p.Waveform))
	}

	if p.Waveform == Square && (p.DutyCycle < 0 || p.DutyCycle >= 1) {
		return audio.Errorf(audio.OutOfRange, op, "duty cycle %v outside (0,1)", p.DutyCycle)
	}
	return nil
}

// pinkRows is the number of Voss-McCartney octave rows.
const pinkRows = 16

type pinkState struct {
	rows    [pinkRows]float64
	running float64
	counter uint32
}

// Generator renders GeneratorParams. Its phase accumulators are only
// touched by Fill.
type Generator struct {
	params   GeneratorParams
	rate     float64
	channels int
	loop     bool
	total    int64 // frames, 0 = endless

	n      int64     // frames produced since start or last loop
	phase  float64   // cycles, [0,1)
	phases []float64 // multi-tone partial phases
	pcg    *rand.PCG
	rng    *rand.Rand
	pink   []pinkState
}

func NewGenerator(p GeneratorParams, sampleRate, channels int, loop bool) (*Generator, error) {
	if err := p.Validate(sampleRate); err != nil {
		return nil, err
	}
	if channels <= 0 {
		return nil, audio.Errorf(audio.OutOfRange, "new generator", "%d channels", channels)
	}
	if p.DutyCycle == 0 {
		p.DutyCycle = 0.5
	}
	if p.Waveform == MultiTone && len(p.Tones) == 0 {
		p.Tones = DefaultTones
	}

	g := &Generator{
		params:   p,
		rate:     float64(sampleRate),
		channels: channels,
		loop:     loop,
		total:    int64(audio.DurationToFrames(p.Duration, sampleRate)),
		phases:   make([]float64, len(p.Tones)),
		pink:     make([]pinkState, channels),
		pcg:      rand.NewPCG(0, 0),
	}
	g.rng = rand.New(g.pcg)
	g.reset()
	return g, nil
}

func (g *Generator) Channels() int           { return g.channels }
func (g *Generator) SampleRate() int         { return int(g.rate) }
func (g *Generator) Params() GeneratorParams { return g.params }

func (g *Generator) reset() {
	g.n = 0
	g.phase = 0
	clear(g.phases)
	clear(g.pink)
	g.pcg.Seed(g.params.Seed, g.params.Seed^0x9e3779b97f4a7c15)
}

func (g *Generator) Fill(out []float32, frames int) (int, bool) {
	ch := g.channels
	written := 0

	for written < frames {
		if g.total > 0 && g.n >= g.total {
			if !g.loop {
				break
			}
			g.reset()
		}

		base := written * ch
		switch g.params.Waveform {
		case WhiteNoise:
			for c := range ch {
				out[base+c] = float32(g.params.Amplitude * g.white())
			}
		case PinkNoise:
			for c := range ch {
				out[base+c] = float32(g.params.Amplitude * g.pinkSample(&g.pink[c]))
			}
		default:
			v := float32(g.params.Amplitude * g.next())
			for c := range ch {
				out[base+c] = v
			}
		}

		g.n++
		written++
	}

	clear(out[written*ch : frames*ch])
	return written, !g.loop && g.total > 0 && g.n >= g.total
}

// next renders one mono sample of a periodic or deterministic waveform and
// advances the phase.
func (g *Generator) next() float64 {
	p := &g.params
	var v float64

	switch p.Waveform {
	case Sine:
		v = math.Sin(2*math.Pi*g.phase + p.Phase)
		g.advance(p.Frequency)
	case Square:
		if g.shifted() < p.DutyCycle {
			v = 1
		} else {
			v = -1
		}
		g.advance(p.Frequency)
	case Sawtooth:
		v = 2*g.shifted() - 1
		g.advance(p.Frequency)
	case Sweep:
		// exponential interpolation from SweepStart to SweepEnd over total
		t := float64(g.n) / float64(g.total)
		f := p.SweepStart * math.Pow(p.SweepEnd/p.SweepStart, t)
		v = math.Sin(2*math.Pi*g.phase + p.Phase)
		g.advance(f)
	case Impulse:
		if g.n == int64(p.Delay) {
			v = 1
		}
	case MultiTone:
		for i, tone := range p.Tones {
			v += tone.Amplitude * math.Sin(2*math.Pi*g.phases[i]+p.Phase)
			g.phases[i] = wrap(g.phases[i] + p.Frequency*tone.Ratio/g.rate)
		}
	}
	return v
}

// shifted is the phase with the initial offset applied, in cycles.
func (g *Generator) shifted() float64 {
	return wrap(g.phase + g.params.Phase/(2*math.Pi))
}

func (g *Generator) advance(freq float64) {
	g.phase = wrap(g.phase + freq/g.rate)
}

func wrap(x float64) float64 {
	return x - math.Floor(x)
}

func (g *Generator) white() float64 {
	return 2*g.rng.Float64() - 1
}

// pinkSample is the Voss-McCartney algorithm: row k is refreshed every 2^k
// samples, the rows are summed with one fresh white sample.
func (g *Generator) pinkSample(s *pinkState) float64 {
	s.counter++
	if k := bits.TrailingZeros32(s.counter); k < pinkRows {
		r := g.white()
		s.running += r - s.rows[k]
		s.rows[k] = r
	}
	return (s.running + g.white()) / (pinkRows + 1)
}

// Frames is the signal length, or 0 when endless.
func (g *Generator) Frames() int64 { return g.total }
