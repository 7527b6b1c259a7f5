// SPDX-License-Identifier: EPL-2.0

package virtual

import (
	"errors"
	"testing"

	"github.com/ik5/audengine/audio"
	"github.com/ik5/audengine/backend"
)

func openDefault(t *testing.T, b *Backend, cb backend.OutputCallback) backend.Stream {
	t.Helper()

	if err := b.Initialize(); err != nil {
		t.Fatal(err)
	}
	cfg := backend.DefaultStreamConfig()
	s, err := b.OpenOutput("", cfg, cb)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestBackend_Enumerate(t *testing.T) {
	t.Parallel()

	b := New()
	if _, err := b.Enumerate(backend.Output); !errors.Is(err, audio.ErrInitializationFailed) {
		t.Fatalf("Enumerate() before Initialize = %v", err)
	}
	if err := b.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := b.Initialize(); err != nil {
		t.Fatalf("second Initialize() = %v, want idempotent", err)
	}

	outs, err := b.Enumerate(backend.Output)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 2 {
		t.Fatalf("Enumerate(Output) = %d devices, want 2", len(outs))
	}
	if len(outs[0].SupportedConfigs) == 0 {
		t.Error("device has no supported configs")
	}

	def, err := b.DefaultDevice(backend.Input)
	if err != nil || def.ID != "virtual-in-0" {
		t.Errorf("DefaultDevice(Input) = %v, %v", def.ID, err)
	}

	if _, err := b.SupportedConfigs("nope", backend.Output); !errors.Is(err, audio.ErrDeviceNotFound) {
		t.Errorf("SupportedConfigs(unknown) = %v", err)
	}
}

func TestBackend_Unavailable(t *testing.T) {
	t.Parallel()

	b := New(WithUnavailable())
	if b.IsAvailable() {
		t.Fatal("IsAvailable() = true")
	}
	if err := b.Initialize(); !errors.Is(err, audio.ErrBackendNotAvailable) {
		t.Errorf("Initialize() = %v", err)
	}

	b = New(WithInitError(errors.New("driver missing")), WithKind(backend.NativeExclusive))
	if err := b.Initialize(); !errors.Is(err, audio.ErrInitializationFailed) {
		t.Errorf("Initialize() = %v", err)
	}
	if b.Kind() != backend.NativeExclusive {
		t.Errorf("Kind() = %v", b.Kind())
	}
}

func TestBackend_PumpRendersOnlyWhilePlaying(t *testing.T) {
	t.Parallel()

	var last []float32
	b := New(WithOutputTap(func(_ string, out []float32) { last = append(last[:0], out...) }))
	s := openDefault(t, b, func(out []float32) {
		for i := range out {
			out[i] = 0.25
		}
	})

	b.Pump(1)
	if audioPeak(last) != 0 {
		t.Fatal("stopped stream rendered audio")
	}

	if err := s.Play(); err != nil {
		t.Fatal(err)
	}
	b.Pump(1)
	if audioPeak(last) != 0.25 {
		t.Fatalf("playing stream peak = %v, want 0.25", audioPeak(last))
	}
	if len(last) != s.Config().BlockSamples() {
		t.Errorf("block = %d samples, want %d", len(last), s.Config().BlockSamples())
	}

	_ = s.Pause()
	b.Pump(1)
	if audioPeak(last) != 0 {
		t.Error("paused stream rendered audio")
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if b.Streams() != 0 {
		t.Errorf("Streams() = %d after Close", b.Streams())
	}
}

func TestBackend_DisconnectFailsStream(t *testing.T) {
	t.Parallel()

	b := New()
	s := openDefault(t, b, func([]float32) {})
	_ = s.Play()

	if err := b.Disconnect(s.DeviceID()); err != nil {
		t.Fatal(err)
	}
	if s.Status() != backend.Errored {
		t.Fatalf("Status() = %v, want errored", s.Status())
	}

	ev, ok := b.PollEvent()
	if !ok || ev.Kind != backend.EventDisconnected || ev.DeviceID != "virtual-out-0" {
		t.Fatalf("PollEvent() = %+v, %v", ev, ok)
	}

	def, err := b.DefaultDevice(backend.Output)
	if err != nil || def.ID != "virtual-out-1" {
		t.Errorf("DefaultDevice() after disconnect = %q, %v", def.ID, err)
	}
	if _, err := b.OpenOutput("virtual-out-0", backend.DefaultStreamConfig(), nil); !errors.Is(err, audio.ErrDeviceNotFound) {
		t.Errorf("OpenOutput(disconnected) = %v", err)
	}

	_ = b.Reconnect("virtual-out-0")
	ev, _ = b.PollEvent()
	if ev.Kind != backend.EventReconnected {
		t.Errorf("event after Reconnect = %v", ev.Kind)
	}
}

func TestBackend_ExclusiveDowngrade(t *testing.T) {
	t.Parallel()

	shared := Device("shared-only", "Shared", backend.Output, 2, true)
	shared.Exclusive = false
	b := New(WithOutputs(shared))
	_ = b.Initialize()

	cfg := backend.DefaultStreamConfig()
	cfg.Exclusive = true
	cfg.BufferFrames = 128

	s, err := b.OpenOutput("", cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.Config().Exclusive || s.Config().BufferFrames != 512 {
		t.Errorf("Config() = %v, want shared 512", s.Config())
	}
	ev, ok := b.PollEvent()
	if !ok || ev.Kind != backend.EventExclusiveDowngrade {
		t.Errorf("PollEvent() = %+v, %v", ev, ok)
	}
}

func TestBackend_InputCapture(t *testing.T) {
	t.Parallel()

	b := New(WithInputSignal(func(frame, ch int) float32 { return float32(frame) + float32(ch)*0.5 }))
	_ = b.Initialize()

	cfg := backend.DefaultStreamConfig()
	var got []float32
	s, err := b.OpenInput("", cfg, func(in []float32) { got = append(got, in...) })
	if err != nil {
		t.Fatal(err)
	}

	b.Pump(1) // stopped: nothing delivered
	_ = s.Play()
	b.Pump(2)

	if len(got) != 2*cfg.BlockSamples() {
		t.Fatalf("captured %d samples, want %d", len(got), 2*cfg.BlockSamples())
	}
	// the first delivered frame is the second block's first frame
	if got[0] != float32(cfg.BufferFrames) || got[1] != float32(cfg.BufferFrames)+0.5 {
		t.Errorf("first frame = (%v, %v)", got[0], got[1])
	}
}

func audioPeak(xs []float32) float32 {
	var p float32
	for _, x := range xs {
		p = max(p, x, -x)
	}
	return p
}
