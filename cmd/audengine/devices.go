// SPDX-License-Identifier: EPL-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ik5/audengine/backend"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices of the selected backend",

	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "backend: %s\n\n", s.manager.BackendKind())
		fmt.Fprintln(w, "DIR\tID\tNAME\tCHANNELS\tRATES\tDEFAULT")

		for _, dir := range []backend.Direction{backend.Output, backend.Input} {
			devices, err := s.manager.Devices(dir)
			if err != nil {
				return err
			}
			for _, d := range devices {
				def := ""
				if d.IsDefault {
					def = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d-%d\t%s\n",
					dir, d.ID, d.Name, d.MaxChannels(dir), d.MinSampleRate, d.MaxSampleRate, def)
			}
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
