// SPDX-License-Identifier: EPL-2.0

package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/internal/eventq"
)

func TestStreamConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*StreamConfig)
		wantErr bool
	}{
		{"default", func(*StreamConfig) {}, false},
		{"192k", func(c *StreamConfig) { c.SampleRate = 192000 }, false},
		{"22k", func(c *StreamConfig) { c.SampleRate = 22050 }, true},
		{"eight channels", func(c *StreamConfig) { c.Channels = 8 }, false},
		{"nine channels", func(c *StreamConfig) { c.Channels = 9 }, true},
		{"no buffer", func(c *StreamConfig) { c.BufferFrames = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultStreamConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, audio.ErrUnsupportedFormat) {
				t.Errorf("Validate() kind = %v, want unsupported format", audio.KindOf(err))
			}
		})
	}
}

func TestNegotiate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		cfg            StreamConfig
		supported      bool
		wantFrames     int
		wantExclusive  bool
		wantDowngraded bool
	}{
		{"exclusive granted", StreamConfig{BufferFrames: 100, Exclusive: true}, true, 128, true, false},
		{"exclusive tiny", StreamConfig{BufferFrames: 1, Exclusive: true}, true, 64, true, false},
		{"exclusive refused", StreamConfig{BufferFrames: 100, Exclusive: true}, false, 512, false, true},
		{"shared", StreamConfig{BufferFrames: 600}, true, 1024, false, false},
		{"shared oversize", StreamConfig{BufferFrames: 9000}, false, 2048, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, downgraded := Negotiate(tt.cfg, tt.supported)
			if got.BufferFrames != tt.wantFrames || got.Exclusive != tt.wantExclusive || downgraded != tt.wantDowngraded {
				t.Errorf("Negotiate() = %d frames exclusive=%v downgraded=%v, want %d %v %v",
					got.BufferFrames, got.Exclusive, downgraded, tt.wantFrames, tt.wantExclusive, tt.wantDowngraded)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{NativeShared, NativeExclusive, BrowserGraph, Virtual} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("alsa"); !errors.Is(err, audio.ErrBackendNotAvailable) {
		t.Errorf("ParseKind(alsa) error = %v", err)
	}
}

func TestConfigsFor(t *testing.T) {
	t.Parallel()

	dev := DeviceInfo{MaxOutputChannels: 2, MinSampleRate: 44100, MaxSampleRate: 48000, Exclusive: true}
	configs := ConfigsFor(dev, Output)

	// 2 rates x 2 channel counts x shared/exclusive
	if len(configs) != 8 {
		t.Fatalf("ConfigsFor() returned %d configs, want 8", len(configs))
	}
	for _, c := range configs {
		if !dev.Supports(c, Output) {
			t.Errorf("ConfigsFor() produced unsupported %v", c)
		}
		if c.Exclusive && c.BufferFrames != ExclusiveBufferSizes[0] {
			t.Errorf("exclusive config has %d frames", c.BufferFrames)
		}
	}
	if len(ConfigsFor(dev, Input)) != 0 {
		t.Error("ConfigsFor(Input) on an output-only device is not empty")
	}
}

func TestStreamCore_Transitions(t *testing.T) {
	t.Parallel()

	starts, stops := 0, 0
	core := NewStreamCore(CoreOptions{
		Config: DefaultStreamConfig(),
		Hooks: Hooks{
			Start: func() error { starts++; return nil },
			Stop:  func() error { stops++; return nil },
		},
	})

	if err := core.Pause(); !errors.Is(err, audio.ErrInvalidState) {
		t.Fatalf("Pause() from Stopped = %v, want invalid state", err)
	}
	if err := core.Play(); err != nil {
		t.Fatal(err)
	}
	if err := core.Pause(); err != nil {
		t.Fatal(err)
	}
	if core.Status() != Paused {
		t.Fatalf("Status() = %v, want paused", core.Status())
	}
	if err := core.Play(); err != nil {
		t.Fatal(err)
	}
	if starts != 1 {
		t.Errorf("device started %d times, resume from pause must not restart it", starts)
	}
	if err := core.Stop(); err != nil {
		t.Fatal(err)
	}
	if stops != 1 || core.Status() != Stopped {
		t.Errorf("after Stop(): stops=%d status=%v", stops, core.Status())
	}
}

func TestStreamCore_FailSilencesCallback(t *testing.T) {
	t.Parallel()

	events := eventq.New[Event](4)
	core := NewStreamCore(CoreOptions{DeviceID: "dev-1", Config: DefaultStreamConfig(), Events: events})
	_ = core.Play()

	out := []float32{9, 9}
	core.Render(out, func(o []float32) { o[0], o[1] = 0.5, 0.5 })
	if out[0] != 0.5 {
		t.Fatalf("Render() while playing = %v", out)
	}

	core.Fail(EventDisconnected, audio.ErrDeviceUnavailable)
	core.Fail(EventDisconnected, audio.ErrDeviceUnavailable)

	core.Render(out, func(o []float32) { o[0], o[1] = 0.5, 0.5 })
	if out[0] != 0 || out[1] != 0 {
		t.Errorf("Render() after Fail = %v, want silence", out)
	}
	if core.Status() != Errored {
		t.Errorf("Status() = %v, want errored", core.Status())
	}
	if err := core.Play(); !errors.Is(err, audio.ErrStream) {
		t.Errorf("Play() on errored stream = %v", err)
	}
	if events.Len() != 1 {
		t.Fatalf("queued %d events, want exactly 1", events.Len())
	}
	ev, _ := events.Pop()
	if ev.Kind != EventDisconnected || ev.DeviceID != "dev-1" {
		t.Errorf("event = %+v", ev)
	}
	if core.Callbacks() != 2 {
		t.Errorf("Callbacks() = %d, want 2", core.Callbacks())
	}
}

func TestStreamCore_RenderZeroAllocs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping allocation test in short mode")
	}

	core := NewStreamCore(CoreOptions{Config: DefaultStreamConfig()})
	_ = core.Play()
	out := make([]float32, 1024)
	cb := func(o []float32) { o[0] = 1 }

	allocs := testing.AllocsPerRun(100, func() {
		core.Render(out, cb)
	})
	if allocs > 0 {
		t.Errorf("Render allocated %v times, want 0", allocs)
	}
}

func TestStreamCore_WatchDetectsStall(t *testing.T) {
	t.Parallel()

	cfg := DefaultStreamConfig()
	cfg.BufferFrames = 64
	events := eventq.New[Event](4)
	core := NewStreamCore(CoreOptions{DeviceID: "stalled", Config: cfg, Events: events})
	_ = core.Play()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		core.Watch(ctx, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("watchdog never fired")
	}

	if core.Status() != Errored {
		t.Fatalf("Status() = %v, want errored", core.Status())
	}
	ev, ok := events.Pop()
	if !ok || ev.Kind != EventDisconnected || !errors.Is(ev.Err, audio.ErrDeviceUnavailable) {
		t.Errorf("event = %+v, %v", ev, ok)
	}
}

func TestStreamCore_WatchCheckError(t *testing.T) {
	t.Parallel()

	cfg := DefaultStreamConfig()
	cfg.BufferFrames = 64
	events := eventq.New[Event](4)
	core := NewStreamCore(CoreOptions{Config: cfg, Events: events})
	_ = core.Play()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	core.Watch(ctx, func() error { return errors.New("player closed") })

	ev, ok := events.Pop()
	if !ok || ev.Kind != EventStreamError {
		t.Errorf("event = %+v, %v, want stream error", ev, ok)
	}
}
