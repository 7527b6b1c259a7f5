// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ik5/audengine"
	"github.com/ik5/audengine/recorder"
)

var (
	argConvertRate   int
	argConvertMono   bool
	argConvertFormat string

	convertCmd = &cobra.Command{
		Use:   "convert <input> <output.wav>",
		Short: "Decode a file, optionally resample or downmix it, and write a wav",
		Args:  cobra.ExactArgs(2),

		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []audengine.LoadOption
			if argConvertRate > 0 {
				opts = append(opts, audengine.WithSampleRate(argConvertRate))
			}
			if argConvertMono {
				opts = append(opts, audengine.WithMono())
			}

			pcm, err := audengine.LoadFile(args[0], opts...)
			if err != nil {
				return err
			}
			if err := recorder.SavePCM(args[1], pcm, argConvertFormat); err != nil {
				return err
			}

			slog.Debug("converted", "input", args[0], "output", args[1], "format", argConvertFormat)
			fmt.Printf("%s: %d Hz, %d ch, %v\n", args[1], pcm.SampleRate, pcm.Channels, pcm.Duration())
			return nil
		},
	}
)

func init() {
	convertCmd.Flags().IntVarP(&argConvertRate, "rate", "r", 0, "Target sample rate; 0 keeps the file's rate")
	convertCmd.Flags().BoolVarP(&argConvertMono, "mono", "m", false, "Average all channels into one")
	convertCmd.Flags().StringVarP(&argConvertFormat, "format", "f", recorder.FormatWAV, "wav (32-bit float), wav16 or wav24")

	rootCmd.AddCommand(convertCmd)
}
