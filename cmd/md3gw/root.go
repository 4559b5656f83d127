package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "md3gw",
	Short: "MD3 substation gateway",
	Long: `md3gw - An MD3 outstation gateway.

Serves MD3 masters from a point table kept current by Modbus TCP slaves
and simulated sources. Every outstation, port and point mapping is read
from a YAML config file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "md3gw.yaml", "Gateway config file")
}
