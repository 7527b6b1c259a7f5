// SPDX-License-Identifier: EPL-2.0

package dsp

import (
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/ik5/audengine/audio"
)

const fs = 48000.0

func TestDesign_PeakingGainAtCentre(t *testing.T) {
	t.Parallel()

	for _, f0 := range []float64{20, 60, 960, 7680, fs/2 - 1000} {
		for _, q := range []float64{0.1, 0.7, 1, 4, 18} {
			for _, g := range []float64{-40, -12, -6, 0, 3, 6, 24, 40} {
				c := Design(Peaking, f0, q, g, fs)
				got := c.Magnitude(f0, fs)
				want := math.Pow(10, g/20)
				if math.Abs(got-want)/want > 0.01 {
					t.Errorf("peaking f0=%v Q=%v g=%v: |H(f0)| = %v, want %v", f0, q, g, got, want)
				}
			}
		}
	}
}

func TestDesign_CutoffIsMinus3dB(t *testing.T) {
	t.Parallel()

	for _, typ := range []FilterType{LowPass, HighPass} {
		for _, f0 := range []float64{100, 1000, 10000} {
			c := Design(typ, f0, 1/math.Sqrt2, 0, fs)
			got := c.Magnitude(f0, fs)
			if math.Abs(got-1/math.Sqrt2) > 0.01 {
				t.Errorf("%v f0=%v: |H(f0)| = %v, want 0.707", typ, f0, got)
			}
		}
	}
}

func TestDesign_Shapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		c    Coefficients
		f    float64
		want float64
	}{
		{"lowpass passes dc", Design(LowPass, 1000, 0.707, 0, fs), 10, 1},
		{"highpass blocks dc", Design(HighPass, 1000, 0.707, 0, fs), 1, 0},
		{"bandpass unity at centre", Design(BandPass, 1000, 2, 0, fs), 1000, 1},
		{"notch kills centre", Design(Notch, 1000, 2, 0, fs), 1000, 0},
		{"low shelf at dc", Design(LowShelf, 200, 0.707, 12, fs), 1, math.Pow(10, 12.0/20)},
		{"high shelf at nyquist", Design(HighShelf, 2000, 0.707, -12, fs), fs/2 - 1, math.Pow(10, -12.0/20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.c.Magnitude(tt.f, fs); math.Abs(got-tt.want) > 0.01*max(1, tt.want) {
				t.Errorf("|H(%v)| = %v, want %v", tt.f, got, tt.want)
			}
		})
	}
}

func TestBiquad_BoundaryFrequenciesStayFinite(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	input := make([]float32, 4096*2)
	for i := range input {
		input[i] = float32(2*rng.Float64() - 1)
	}

	for typ := Peaking; typ <= Notch; typ++ {
		for _, f0 := range []float64{MinFrequency, fs/2 - 1} {
			for _, g := range []float64{MinGainDB, 0, MaxGainDB} {
				c := Design(typ, f0, MinQ, g, fs)
				if !c.Valid() {
					t.Fatalf("%v f0=%v g=%v: invalid coefficients %+v", typ, f0, g, c)
				}

				bq := NewBiquad(2)
				bq.SetCoefficients(c)
				buf := append([]float32(nil), input...)
				bq.Process(buf, len(buf)/2)
				for i, v := range buf {
					if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
						t.Fatalf("%v f0=%v g=%v: sample %d = %v", typ, f0, g, i, v)
					}
				}
			}
		}
	}
}

func TestEQ_FlatIsExactNoOp(t *testing.T) {
	t.Parallel()

	eq := NewEQ(48000, 2)
	eq.Reset()
	if err := eq.ApplyPreset("flat"); err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewPCG(3, 4))
	in := make([]float32, 1000*2)
	for i := range in {
		in[i] = float32(2*rng.Float64() - 1)
	}
	buf := append([]float32(nil), in...)

	eq.Process(buf, 1000)
	for i := range in {
		if buf[i] != in[i] {
			t.Fatalf("sample %d changed: %v -> %v", i, in[i], buf[i])
		}
	}
}

func TestEQ_ChangesAreSmoothed(t *testing.T) {
	t.Parallel()

	eq := NewEQ(48000, 1)
	if err := eq.SetBandGain(4, 12); err != nil {
		t.Fatal(err)
	}

	buf := make([]float32, subBlock)
	eq.Process(buf, subBlock)

	g := eq.sections[4].last.GainDB
	if g <= 0 || g >= 12 {
		t.Fatalf("gain after one sub-block = %v dB, want strictly between 0 and 12", g)
	}

	// 200 ms settles a 10 ms time constant completely
	long := make([]float32, 9600)
	eq.Process(long, len(long))
	if got := eq.sections[4].last.GainDB; got != 12 {
		t.Errorf("gain after 200ms = %v, want 12", got)
	}
	if eq.sections[4].dirty {
		t.Error("settled band still recomputes coefficients")
	}
}

func TestEQ_BoostsSine(t *testing.T) {
	t.Parallel()

	eq := NewEQ(48000, 1)
	_ = eq.SetBandGain(4, 6) // 960 Hz

	const n = 48000
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = float32(0.25 * math.Sin(2*math.Pi*1000*float64(i)/fs))
	}
	eq.Process(buf, n)

	var peak float64
	for _, v := range buf[n/2:] {
		peak = max(peak, math.Abs(float64(v)))
	}
	if ratio := peak / 0.25; ratio < 1.8 || ratio > 2.2 {
		t.Errorf("boost ratio = %v, want about 2", ratio)
	}
}

func TestEQ_ClampAndStrict(t *testing.T) {
	t.Parallel()

	eq := NewEQ(48000, 2)
	if err := eq.SetBandGain(0, 55); err != nil {
		t.Fatalf("SetBandGain(55) = %v, want clamp without error", err)
	}
	if got := eq.Band(0).GainDB; got != MaxGainDB {
		t.Errorf("gain = %v, want %v", got, MaxGainDB)
	}
	if err := eq.SetBand(1, Band{Type: Peaking, Frequency: 30000, Q: 50, GainDB: 3}); err != nil {
		t.Fatal(err)
	}
	if b := eq.Band(1); b.Frequency != 23999 || b.Q != MaxQ {
		t.Errorf("band = %+v, want 23999 Hz Q 18", b)
	}

	strict := NewEQ(48000, 2, WithStrict(true))
	before := strict.Version()
	if err := strict.SetBandGain(0, -41); !errors.Is(err, audio.ErrOutOfRange) {
		t.Fatalf("strict SetBandGain(-41) = %v", err)
	}
	if strict.Band(0).GainDB != 0 || strict.Version() != before {
		t.Error("rejected change was applied")
	}

	if err := eq.SetBandGain(8, 1); !errors.Is(err, audio.ErrOutOfRange) {
		t.Errorf("SetBandGain(8) = %v, want out of range", err)
	}
}

func TestEQ_NaNKeepsLastValidValue(t *testing.T) {
	t.Parallel()

	eq := NewEQ(48000, 1)
	_ = eq.SetBandGain(2, 6)
	warm := make([]float32, 9600)
	eq.Process(warm, len(warm))

	if err := eq.SetBand(2, Band{Type: Peaking, Frequency: 240, Q: 1, GainDB: math.NaN()}); err != nil {
		t.Fatal(err)
	}
	if b := eq.Band(2); b.GainDB != 6 {
		t.Errorf("target after NaN gain = %+v, want 6 dB kept", b)
	}

	buf := make([]float32, 512)
	for i := range buf {
		buf[i] = float32(math.Sin(float64(i) * 0.03))
	}
	eq.Process(buf, len(buf))

	for i, v := range buf {
		if math.IsNaN(float64(v)) {
			t.Fatalf("sample %d is NaN", i)
		}
	}
	if g := eq.sections[2].last.GainDB; g != 6 {
		t.Errorf("band at %v dB, want last valid 6", g)
	}
}

func TestEQ_GainChangeAfterNaNFrequency(t *testing.T) {
	t.Parallel()

	eq := NewEQ(48000, 2)
	if err := eq.SetBand(4, Band{Type: Peaking, Frequency: math.NaN(), Q: 1}); err != nil {
		t.Fatal(err)
	}
	if err := eq.SetBandGain(4, 6); err != nil {
		t.Fatal(err)
	}

	if b := eq.Band(4); b.Frequency != DefaultFrequencies[4] || b.GainDB != 6 {
		t.Errorf("target = %+v, want %v Hz at 6 dB", b, DefaultFrequencies[4])
	}
	for _, b := range eq.Bands() {
		if hasNaNField(b) {
			t.Fatalf("Bands() reports %+v", b)
		}
	}

	buf := make([]float32, 2*512)
	for range 20 {
		eq.Process(buf, 512)
	}
	s := eq.sections[4]
	if s.bypassed || math.Abs(s.last.GainDB-6) > 1e-2 || s.last.Frequency != DefaultFrequencies[4] {
		t.Errorf("applied = %+v bypassed=%v, want %v Hz at 6 dB", s.last, s.bypassed, DefaultFrequencies[4])
	}
}

func hasNaNField(b Band) bool {
	return math.IsNaN(b.Frequency) || math.IsNaN(b.Q) || math.IsNaN(b.GainDB)
}

func TestEQ_StrictRejectsNaN(t *testing.T) {
	t.Parallel()

	eq := NewEQ(48000, 2, WithStrict(true))
	before := eq.Band(3)
	if err := eq.SetBand(3, Band{Type: Peaking, Frequency: 480, Q: math.NaN(), GainDB: 3}); !errors.Is(err, audio.ErrOutOfRange) {
		t.Fatalf("SetBand(NaN Q) = %v, want out of range", err)
	}
	if got := eq.Band(3); got != before {
		t.Errorf("band = %+v, want unchanged %+v", got, before)
	}
}

func TestEQ_StrictGainsAllOrNothing(t *testing.T) {
	t.Parallel()

	eq := NewEQ(48000, 2, WithStrict(true))
	if err := eq.SetGains([]float64{3, 3, 99}); !errors.Is(err, audio.ErrOutOfRange) {
		t.Fatalf("SetGains = %v, want out of range", err)
	}
	for i, b := range eq.Bands() {
		if b.GainDB != 0 {
			t.Errorf("band %d = %v dB after rejected SetGains", i, b.GainDB)
		}
	}
}

func TestEQ_AdjustHook(t *testing.T) {
	t.Parallel()

	type call struct {
		band               int
		requested, applied Band
	}
	var calls []call
	eq := NewEQ(48000, 2, WithAdjustHook(func(band int, requested, applied Band) {
		calls = append(calls, call{band, requested, applied})
	}))

	if err := eq.SetBandGain(1, 3); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 0 {
		t.Fatalf("in-range change reported %d adjustments", len(calls))
	}

	if err := eq.SetBandGain(1, 55); err != nil {
		t.Fatal(err)
	}
	if err := eq.SetGains([]float64{0, 0, -60}); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 {
		t.Fatalf("got %d adjustments, want 2", len(calls))
	}
	if c := calls[0]; c.band != 1 || c.requested.GainDB != 55 || c.applied.GainDB != MaxGainDB {
		t.Errorf("first adjustment = %+v", c)
	}
	if c := calls[1]; c.band != 2 || c.applied.GainDB != MinGainDB {
		t.Errorf("second adjustment = %+v", c)
	}
}

func TestEQ_ConcurrentSettersKeepFrequency(t *testing.T) {
	t.Parallel()

	eq := NewEQ(48000, 2)
	var wg sync.WaitGroup
	for g := range 4 {
		wg.Go(func() {
			for i := range 200 {
				_ = eq.SetBandGain(5, float64((g+i)%12))
			}
		})
	}
	wg.Go(func() {
		_ = eq.SetBand(5, Band{Type: Peaking, Frequency: 2500, Q: 2, GainDB: 1})
	})
	wg.Wait()

	if b := eq.Band(5); b.Frequency != 2500 || b.Q != 2 {
		t.Errorf("band = %+v, want 2500 Hz Q 2 kept by gain changes", b)
	}
}

func TestEQ_Presets(t *testing.T) {
	t.Parallel()

	eq := NewEQ(48000, 2)
	if err := eq.ApplyPreset("Bass Boost"); err != nil {
		t.Fatal(err)
	}
	want, _ := Preset("bass")
	for i, b := range eq.Bands() {
		if b.GainDB != want[i] {
			t.Errorf("band %d = %v dB, want %v", i, b.GainDB, want[i])
		}
	}
	if err := eq.ApplyPreset("loudness"); !errors.Is(err, audio.ErrOutOfRange) {
		t.Errorf("ApplyPreset(unknown) = %v", err)
	}
	if got := len(Presets()); got != 5 {
		t.Errorf("Presets() = %d names, want 5", got)
	}

	eq.Reset()
	for i, b := range eq.Bands() {
		if b.GainDB != 0 || b.Frequency != DefaultFrequencies[i] || b.Q != DefaultQ {
			t.Errorf("band %d after Reset = %+v", i, b)
		}
	}
}

func TestEQ_Response(t *testing.T) {
	t.Parallel()

	eq := NewEQ(48000, 2)
	if got := eq.Response(1000); math.Abs(got-1) > 1e-9 {
		t.Errorf("flat Response(1000) = %v, want 1", got)
	}
	_ = eq.SetBandGain(7, 12)
	if got := LinearToDB(eq.Response(7680)); math.Abs(got-12) > 0.5 {
		t.Errorf("Response(7680) = %v dB, want about 12", got)
	}
}

func TestEQ_ProcessZeroAllocs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping allocation test in short mode")
	}

	eq := NewEQ(48000, 2)
	_ = eq.ApplyPreset("electronic")
	buf := make([]float32, 1024)

	allocs := testing.AllocsPerRun(100, func() {
		eq.Process(buf, 512)
	})
	if allocs > 0 {
		t.Errorf("Process allocated %v times, want 0", allocs)
	}
}

func TestGain_Ramp(t *testing.T) {
	t.Parallel()

	g := NewGain(1, 1)
	g.Set(0)

	buf := []float32{1, 1, 1, 1}
	g.Process(buf, 4)
	want := []float32{0.75, 0.5, 0.25, 0}
	for i := range want {
		if math.Abs(float64(buf[i]-want[i])) > 1e-6 {
			t.Errorf("buf[%d] = %v, want %v", i, buf[i], want[i])
		}
	}

	buf = []float32{1, 1}
	g.Process(buf, 2)
	if buf[0] != 0 || buf[1] != 0 {
		t.Errorf("settled zero gain = %v", buf)
	}
}

func TestSmoother(t *testing.T) {
	t.Parallel()

	s := NewSmoother(0, 0.01, 0.001, 1e-6)
	s.SetTarget(1)
	first := s.Step()
	if first <= 0 || first >= 1 {
		t.Fatalf("first step = %v", first)
	}
	for range 1000 {
		s.Step()
	}
	if !s.Settled() || s.Value() != 1 {
		t.Errorf("Value() = %v settled=%v", s.Value(), s.Settled())
	}
}

func BenchmarkEQ_Process(b *testing.B) {
	eq := NewEQ(48000, 2)
	_ = eq.ApplyPreset("vocal")
	buf := make([]float32, 1024)

	b.ReportAllocs()
	for b.Loop() {
		eq.Process(buf, 512)
	}
}
