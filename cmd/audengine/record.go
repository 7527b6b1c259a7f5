// SPDX-License-Identifier: EPL-2.0

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ik5/audengine/recorder"
)

var (
	argRecordOut      string
	argRecordFormat   string
	argRecordDuration time.Duration
	argRecordInput    string
	argRecordLabel    string
	argRecordMonitor  string

	recordCmd = &cobra.Command{
		Use:   "record",
		Short: "Record from an input device to a wav file",

		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := recorder.ParseMonitorMode(argRecordMonitor)
			if err != nil {
				return err
			}

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if mode != recorder.MonitorOff {
				if err := s.manager.OpenOutputDevice(""); err != nil {
					return err
				}
			}
			if err := s.manager.SetMonitoringMode(mode, cfg.MonitorGain); err != nil {
				return err
			}
			if err := s.manager.OpenInputDevice(argRecordInput); err != nil {
				return err
			}
			if err := s.manager.StartRecording(); err != nil {
				return err
			}
			fmt.Println("recording, press Ctrl+C to stop")

			s.wait(argRecordDuration)

			take, err := s.manager.StopRecordingAs(argRecordLabel)
			if err != nil {
				return err
			}
			if take == nil {
				return errors.New("no input was captured")
			}
			if err := s.manager.SaveRecording(argRecordOut, argRecordFormat); err != nil {
				return err
			}

			fmt.Printf("%s: %s, %v, peak %.3f, %d clip(s), saved to %s\n",
				take.ID, take.Label, take.Duration.Round(time.Millisecond), take.Peak, take.ClipEvents, argRecordOut)
			return nil
		},
	}
)

func init() {
	recordCmd.Flags().StringVarP(&argRecordOut, "out", "o", "take.wav", "Output file")
	recordCmd.Flags().StringVarP(&argRecordFormat, "format", "f", recorder.FormatWAV, "wav (32-bit float), wav16 or wav24")
	recordCmd.Flags().DurationVarP(&argRecordDuration, "duration", "d", 0, "Stop after this long; 0 records until interrupted")
	recordCmd.Flags().StringVarP(&argRecordInput, "input", "i", "", "Input device id; empty selects the default")
	recordCmd.Flags().StringVarP(&argRecordLabel, "label", "", "", "Take label")
	recordCmd.Flags().StringVarP(&argRecordMonitor, "monitor", "m", "off", "Monitoring: off, direct or routed")

	rootCmd.AddCommand(recordCmd)
}
