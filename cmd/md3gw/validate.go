package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"avaneesh/md3-go/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a config file and print a summary",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: ok\n", configPath)
	for _, o := range cfg.Outstations {
		pc, err := o.Points.Build()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  outstation %s: station %d on %s, %d digital, %d analog, %d counter, %d controls\n",
			o.ID, o.Station, o.Transport.Key(), len(pc.Digital), len(pc.Analog), len(pc.Counter), len(pc.Controls))
	}
	for _, m := range cfg.Modbus {
		fmt.Fprintf(out, "  modbus %s: %s unit %d, %d reads, %d writes\n", m.ID, m.Endpoint, m.UnitID, len(m.Reads), len(m.Writes))
	}
	for _, s := range cfg.Simulators {
		fmt.Fprintf(out, "  simulator %s: %d analogs, %d binaries, %d counters\n", s.ID, len(s.Analogs), len(s.Binaries), len(s.Counters))
	}
	return nil
}
