// SPDX-License-Identifier: EPL-2.0

package router

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/dsp"
	"github.com/ik5/audengine/formats/wav"
	"github.com/ik5/audengine/internal/audiotest"
	"github.com/ik5/audengine/meter"
)

func near(a, b, tol float32) bool { return math.Abs(float64(a-b)) <= float64(tol) }

func mustSource(t *testing.T, r *Router, s Source) SourceID {
	t.Helper()
	id, err := r.AddSource(s)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func mustDest(t *testing.T, r *Router, d Destination, opts ...DestOption) DestID {
	t.Helper()
	id, err := r.AddDestination(d, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func mustRoute(t *testing.T, r *Router, s SourceID, d DestID, gain float64, opts ...RouteOption) RouteID {
	t.Helper()
	id, err := r.CreateRoute(s, d, gain, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestRouter_MixesWithGains(t *testing.T) {
	t.Parallel()

	r := New()
	a := mustSource(t, r, audiotest.NewConstantSource(48000, 2, -1, 0.25))
	b := mustSource(t, r, audiotest.NewConstantSource(48000, 2, -1, 0.5))
	sink := audiotest.NewSink(2)
	d := mustDest(t, r, sink)
	mustRoute(t, r, a, d, 1)
	mustRoute(t, r, b, d, 0.5)

	r.Process(64)

	got := sink.Samples()
	if len(got) != 128 {
		t.Fatalf("len = %d, want 128", len(got))
	}
	for i, v := range got {
		if !near(v, 0.5, 1e-6) {
			t.Fatalf("sample %d = %v, want 0.5", i, v)
		}
	}
}

func TestRouter_ChannelMapping(t *testing.T) {
	t.Parallel()

	r := New()
	mono := mustSource(t, r, audiotest.NewConstantSource(48000, 1, -1, 0.4))
	stereo := mustSource(t, r, audiotest.NewMockSource(48000, 2, -1, func(_ int, ch int) float32 {
		if ch == 0 {
			return 0.2
		}
		return 0.6
	}))

	wide := audiotest.NewSink(2)
	narrow := audiotest.NewSink(1)
	dw := mustDest(t, r, wide)
	dn := mustDest(t, r, narrow)
	mustRoute(t, r, mono, dw, 1)
	mustRoute(t, r, stereo, dn, 1)

	r.Process(16)

	if p := audiotest.Peak(wide.Samples(), 2, 1); !near(p, 0.4, 1e-6) {
		t.Errorf("mono spread to right = %v, want 0.4", p)
	}
	if p := audiotest.Peak(narrow.Samples(), 1, 0); !near(p, 0.4, 1e-6) {
		t.Errorf("stereo folded to mono = %v, want 0.4", p)
	}
}

func TestRouter_SourcePulledOncePerCycle(t *testing.T) {
	t.Parallel()

	r := New()
	src := audiotest.NewRampSource(48000, 1, -1, 1)
	s := mustSource(t, r, src)
	left, right := audiotest.NewSink(1), audiotest.NewSink(1)
	mustRoute(t, r, s, mustDest(t, r, left), 1)
	mustRoute(t, r, s, mustDest(t, r, right), 1)

	r.Process(32)
	r.Process(32)

	if src.Generated() != 64 {
		t.Fatalf("generated %d frames, want 64", src.Generated())
	}
	for _, sink := range []*audiotest.Sink{left, right} {
		got := sink.Samples()
		for i, v := range got {
			if v != float32(i) {
				t.Fatalf("sample %d = %v, want %d", i, v, i)
			}
		}
	}
}

// order records the point in the chain at which it runs.
type order struct {
	name string
	log  *[]string
	seen float32
}

func (o *order) Process(buf []float32, frames int) {
	*o.log = append(*o.log, o.name)
	o.seen = buf[0]
}

func (o *order) Write(buf []float32, frames int) { o.Process(buf, frames) }

func TestRouter_EffectsThenMeterThenTap(t *testing.T) {
	t.Parallel()

	var log []string
	first := &order{name: "fx1", log: &log}
	second := &order{name: "fx2", log: &log}
	tap := &order{name: "tap", log: &log}
	m := meter.New(1)

	r := New()
	s := mustSource(t, r, audiotest.NewConstantSource(48000, 1, -1, 0.5))
	d := mustDest(t, r, audiotest.NewSink(1),
		WithEffects(first, dsp.NewGain(0.5, 1), second),
		WithMeter(m),
		WithTap(tap),
	)
	mustRoute(t, r, s, d, 1)

	r.Process(64)

	want := []string{"fx1", "fx2", "tap"}
	if len(log) != len(want) {
		t.Fatalf("chain = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("chain = %v, want %v", log, want)
		}
	}
	if first.seen != 0.5 {
		t.Errorf("first effect saw %v, want 0.5", first.seen)
	}
	if !near(tap.seen, 0.25, 1e-6) {
		t.Errorf("tap saw %v, want post-effect 0.25", tap.seen)
	}
	if p := m.Level(0).Peak; !near(p, 0.25, 1e-6) {
		t.Errorf("meter peak = %v, want 0.25", p)
	}
}

func TestRouter_PostEffectsBypassesChain(t *testing.T) {
	t.Parallel()

	r := New()
	playback := mustSource(t, r, audiotest.NewConstantSource(48000, 1, -1, 0.5))
	monitor := mustSource(t, r, audiotest.NewConstantSource(48000, 1, -1, 0.3))
	sink := audiotest.NewSink(1)
	m := meter.New(1)
	d := mustDest(t, r, sink, WithEffects(dsp.NewGain(0, 1)), WithMeter(m))
	mustRoute(t, r, playback, d, 1)
	mustRoute(t, r, monitor, d, 1, PostEffects())

	r.Process(64)

	got := sink.Samples()
	if !near(got[len(got)-1], 0.3, 1e-6) {
		t.Fatalf("output = %v, want only the monitor at 0.3", got[len(got)-1])
	}
	if p := m.Level(0).Peak; !near(p, 0.3, 1e-6) {
		t.Errorf("meter peak = %v, want 0.3", p)
	}
}

func TestRouter_SetRouteGain(t *testing.T) {
	t.Parallel()

	r := New()
	s := mustSource(t, r, audiotest.NewConstantSource(48000, 1, -1, 1))
	sink := audiotest.NewSink(1)
	id := mustRoute(t, r, s, mustDest(t, r, sink), 1)
	version := r.Version()

	if err := r.SetRouteGain(id, 0.25); err != nil {
		t.Fatal(err)
	}
	if r.Version() != version {
		t.Error("gain change rebuilt the graph")
	}
	if g, ok := r.RouteGain(id); !ok || g != 0.25 {
		t.Errorf("RouteGain = %v, %v", g, ok)
	}

	r.Process(8)
	if got := sink.Samples(); got[0] != 0.25 {
		t.Errorf("sample = %v, want 0.25", got[0])
	}

	for _, bad := range []float64{math.NaN(), math.Inf(1), -0.5} {
		if err := r.SetRouteGain(id, bad); !errors.Is(err, ErrInvalidGain) || !errors.Is(err, audio.ErrOutOfRange) {
			t.Errorf("SetRouteGain(%v) err = %v", bad, err)
		}
	}
	if err := r.SetRouteGain(id+100, 1); !errors.Is(err, ErrUnknownRoute) {
		t.Errorf("unknown route err = %v", err)
	}
}

func TestRouter_UnknownHandles(t *testing.T) {
	t.Parallel()

	r := New()
	s := mustSource(t, r, audiotest.NewSilentSource(48000, 1, -1))
	d := mustDest(t, r, audiotest.NewSink(1))

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"route from unknown source", func() error { _, err := r.CreateRoute(99, d, 1); return err }(), ErrUnknownSource},
		{"route to unknown destination", func() error { _, err := r.CreateRoute(s, 99, 1); return err }(), ErrUnknownDestination},
		{"remove unknown route", r.RemoveRoute(99), ErrUnknownRoute},
		{"remove unknown source", r.RemoveSource(99), ErrUnknownSource},
		{"remove unknown destination", r.RemoveDestination(99), ErrUnknownDestination},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) || audio.KindOf(tt.err) != audio.OutOfRange {
			t.Errorf("%s: err = %v, want %v", tt.name, tt.err, tt.want)
		}
	}

	if _, err := r.AddSource(audiotest.NewSilentSource(48000, 0, -1)); !errors.Is(err, ErrChannels) {
		t.Errorf("zero-channel source err = %v", err)
	}
}

func TestRouter_RemoveDetachesRoutes(t *testing.T) {
	t.Parallel()

	r := New()
	a := mustSource(t, r, audiotest.NewConstantSource(48000, 1, -1, 0.5))
	b := mustSource(t, r, audiotest.NewConstantSource(48000, 1, -1, 0.25))
	sink := audiotest.NewSink(1)
	d := mustDest(t, r, sink)
	mustRoute(t, r, a, d, 1)
	mustRoute(t, r, b, d, 1)

	if err := r.RemoveSource(a); err != nil {
		t.Fatal(err)
	}
	if s, ds, rs := r.Counts(); s != 1 || ds != 1 || rs != 1 {
		t.Fatalf("counts = %d/%d/%d, want 1/1/1", s, ds, rs)
	}

	r.Process(4)
	if got := sink.Samples(); got[0] != 0.25 {
		t.Errorf("sample = %v, want 0.25 from the remaining source", got[0])
	}

	if err := r.RemoveDestination(d); err != nil {
		t.Fatal(err)
	}
	if _, _, rs := r.Counts(); rs != 0 {
		t.Errorf("%d routes left after removing their destination", rs)
	}
}

func TestRouter_Finished(t *testing.T) {
	t.Parallel()

	r := New()
	s := mustSource(t, r, audiotest.NewConstantSource(48000, 1, 100, 1))
	sink := audiotest.NewSink(1)
	mustRoute(t, r, s, mustDest(t, r, sink), 1)

	r.Process(64)
	if r.Finished(s) {
		t.Fatal("finished after 64 of 100 frames")
	}
	r.Process(64)
	if !r.Finished(s) {
		t.Fatal("not finished after 128 frames")
	}

	got := sink.Samples()
	if got[99] != 1 || got[100] != 0 {
		t.Errorf("tail = %v %v, want 1 then zero padding", got[99], got[100])
	}
	if !r.Finished(SourceID(999)) {
		t.Error("unknown source should count as finished")
	}
}

func TestRouter_SplitsLargeRequests(t *testing.T) {
	t.Parallel()

	r := New(WithMaxFrames(64))
	s := mustSource(t, r, audiotest.NewRampSource(48000, 1, -1, 1))
	sink := audiotest.NewSink(1)
	mustRoute(t, r, s, mustDest(t, r, sink), 1)

	r.Process(150)

	got := sink.Samples()
	if len(got) != 150 || sink.Writes() != 3 {
		t.Fatalf("got %d samples in %d writes, want 150 in 3", len(got), sink.Writes())
	}
	for i, v := range got {
		if v != float32(i) {
			t.Fatalf("sample %d = %v", i, v)
		}
	}
	if r.Cycles() != 1 {
		t.Errorf("cycles = %d, want 1", r.Cycles())
	}
}

func TestRouter_ProcessDoesNotAllocate(t *testing.T) {
	r := New()
	s := mustSource(t, r, audiotest.NewSineSource(48000, 2, -1, 440))
	eq := dsp.NewEQ(48000, 2)
	if err := eq.ApplyPreset("Vocal"); err != nil {
		t.Fatal(err)
	}
	dst, err := NewRingDestination(2, 8192)
	if err != nil {
		t.Fatal(err)
	}
	d := mustDest(t, r, dst, WithEffects(eq), WithMeter(meter.New(2)))
	mustRoute(t, r, s, d, 0.8)

	out := make([]float32, 512)
	allocs := testing.AllocsPerRun(100, func() {
		r.Process(256)
		dst.Render(out)
	})
	if allocs != 0 {
		t.Errorf("Process allocated %v times per run", allocs)
	}
}

func TestRouter_ConcurrentMutation(t *testing.T) {
	t.Parallel()

	r := New()
	sink := NewDiscard(2)
	d := mustDest(t, r, sink)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.Process(128)
			}
		}
	}()

	for range 200 {
		s, err := r.AddSource(audiotest.NewSineSource(48000, 2, -1, 220))
		if err != nil {
			t.Error(err)
			break
		}
		id, err := r.CreateRoute(s, d, 0.5)
		if err != nil {
			t.Error(err)
			break
		}
		if err := r.SetRouteGain(id, 0.1); err != nil {
			t.Error(err)
		}
		if err := r.RemoveSource(s); err != nil {
			t.Error(err)
		}
	}
	close(stop)
	wg.Wait()

	if s, _, rs := r.Counts(); s != 0 || rs != 0 {
		t.Errorf("left %d sources and %d routes", s, rs)
	}
}

func TestRingDestination_Render(t *testing.T) {
	t.Parallel()

	dst, err := NewRingDestination(2, 256)
	if err != nil {
		t.Fatal(err)
	}
	r := New()
	s := mustSource(t, r, audiotest.NewConstantSource(48000, 2, -1, 0.5))
	mustRoute(t, r, s, mustDest(t, r, dst), 1)

	r.Process(64)
	if dst.Buffered() != 64 {
		t.Fatalf("buffered = %d, want 64", dst.Buffered())
	}

	out := make([]float32, 256)
	dst.Render(out)
	if out[127] != 0.5 || out[128] != 0 {
		t.Errorf("render = %v %v, want data then silence", out[127], out[128])
	}
	if dst.Underruns() != 1 {
		t.Errorf("underruns = %d, want 1", dst.Underruns())
	}
}

func TestWAVDestination_Streams(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bus.wav")
	dst, err := NewWAVDestination(path, 48000, 2, nil)
	if err != nil {
		t.Fatal(err)
	}

	r := New()
	s := mustSource(t, r, audiotest.NewRampSource(48000, 2, 300, 1.0/1024))
	d := mustDest(t, r, dst)
	mustRoute(t, r, s, d, 1)

	r.Process(128)
	r.Process(128)

	if err := r.RemoveDestination(d); err != nil {
		t.Fatal(err)
	}
	if err := dst.Close(); err != nil {
		t.Fatal(err)
	}
	dst.Write(make([]float32, 2), 1)

	pcm := readWAV(t, path)
	if pcm.Frames() != 256 || pcm.Channels != 2 || pcm.SampleRate != 48000 {
		t.Fatalf("file holds %d frames x %d ch at %d Hz", pcm.Frames(), pcm.Channels, pcm.SampleRate)
	}
	if v := pcm.Samples[2*200]; v != 200.0/1024 {
		t.Errorf("frame 200 = %v, want %v", v, 200.0/1024)
	}
}

func readWAV(t *testing.T, path string) *audio.PCM {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	pcm, err := wav.ReadPCM(f)
	if err != nil {
		t.Fatal(err)
	}
	return pcm
}

func BenchmarkRouter_Process(b *testing.B) {
	r := New()
	d, err := r.AddDestination(NewDiscard(2), WithEffects(dsp.NewEQ(48000, 2)), WithMeter(meter.New(2)))
	if err != nil {
		b.Fatal(err)
	}
	for range 4 {
		s, err := r.AddSource(audiotest.NewSineSource(48000, 2, -1, 440))
		if err != nil {
			b.Fatal(err)
		}
		if _, err := r.CreateRoute(s, d, 0.25); err != nil {
			b.Fatal(err)
		}
	}

	for b.Loop() {
		r.Process(256)
	}
}
