// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ik5/audengine/engine"
)

var (
	argPlayLoop  bool
	argPlayStart time.Duration

	playCmd = &cobra.Command{
		Use:   "play <file>",
		Short: "Play a wav, mp3, ogg or aiff file",
		Args:  cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := prepareOutput(s); err != nil {
				return err
			}
			if err := s.manager.PlayFile(args[0], argPlayLoop); err != nil {
				return err
			}
			if argPlayStart > 0 {
				if err := s.manager.Seek(argPlayStart); err != nil {
					return err
				}
			}

			ticker := time.NewTicker(250 * time.Millisecond)
			defer ticker.Stop()
			for s.manager.PlaybackState() != engine.PlaybackStopped {
				select {
				case <-s.ctx.Done():
					slog.Info("playback interrupted", "position", s.manager.PlaybackPosition())
					return nil
				case <-ticker.C:
					slog.Debug("playing", "position", s.manager.PlaybackPosition())
				}
			}

			st := s.manager.Stats()
			fmt.Printf("done: %d blocks, %d underruns\n", st.Blocks, st.OutputUnderruns)
			return nil
		},
	}
)

func init() {
	playCmd.Flags().BoolVarP(&argPlayLoop, "loop", "", false, "Repeat until interrupted")
	playCmd.Flags().DurationVarP(&argPlayStart, "start", "s", 0, "Start position")

	rootCmd.AddCommand(playCmd)
}
