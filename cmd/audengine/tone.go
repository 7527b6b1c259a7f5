// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ik5/audengine/source"
)

var (
	argToneWaveform string
	argToneFreq     float64
	argToneLevel    float64
	argToneDuration time.Duration
	argToneSeed     uint64
	argDevice       string
	argPreset       string
	argVolume       float64

	toneCmd = &cobra.Command{
		Use:   "tone",
		Short: "Play a test signal",

		RunE: func(cmd *cobra.Command, args []string) error {
			waveform, err := source.ParseWaveform(argToneWaveform)
			if err != nil {
				return err
			}
			p := source.GeneratorParams{
				Waveform:   waveform,
				Frequency:  argToneFreq,
				Amplitude:  source.AmplitudeFromDBFS(argToneLevel),
				SweepStart: 20,
				SweepEnd:   min(20000, float64(cfg.Stream.SampleRate)/2-1),
				Duration:   argToneDuration,
				Seed:       argToneSeed,
			}
			if waveform == source.Sweep && p.Duration == 0 {
				p.Duration = 10 * time.Second
			}

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := prepareOutput(s); err != nil {
				return err
			}
			if err := s.manager.PlaySignalGenerator(p, p.Duration == 0); err != nil {
				return err
			}
			slog.Info("playing", "waveform", waveform.String(), "frequency", p.Frequency, "level_dbfs", argToneLevel)

			s.wait(p.Duration)
			fmt.Printf("peak %.1f dBFS\n", s.manager.Level(0).PeakDBFS())
			return nil
		},
	}
)

// prepareOutput opens the chosen output and applies the shared playback
// flags.
func prepareOutput(s *session) error {
	if err := s.manager.OpenOutputDevice(argDevice); err != nil {
		return err
	}
	if err := s.manager.SetMasterVolume(argVolume); err != nil {
		return err
	}
	if argPreset != "" {
		return s.manager.ApplyPreset(argPreset)
	}
	return nil
}

func init() {
	toneCmd.Flags().StringVarP(&argToneWaveform, "waveform", "w", "sine", "sine, square, sawtooth, sweep, impulse, white, pink or multitone")
	toneCmd.Flags().Float64VarP(&argToneFreq, "frequency", "f", 1000, "Frequency in Hz")
	toneCmd.Flags().Float64VarP(&argToneLevel, "level", "", -12, "Level in dBFS")
	toneCmd.Flags().DurationVarP(&argToneDuration, "duration", "d", 0, "Stop after this long; 0 plays until interrupted")
	toneCmd.Flags().Uint64VarP(&argToneSeed, "seed", "", 1, "Noise seed")

	for _, c := range []*cobra.Command{toneCmd, playCmd} {
		c.Flags().StringVarP(&argDevice, "device", "o", "", "Output device id; empty selects the default")
		c.Flags().StringVarP(&argPreset, "preset", "p", "", "EQ preset: flat, bass boost, treble boost, vocal or electronic")
		c.Flags().Float64VarP(&argVolume, "volume", "v", 1, "Master volume 0..1")
	}

	rootCmd.AddCommand(toneCmd)
}
