package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"avaneesh/md3-go/pkg/config"
	"avaneesh/md3-go/pkg/gateway"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gateway until interrupted",
	RunE:  runGateway,
}

func init() {
	runCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "Override log.level from the config (debug, info, warn, error)")
	rootCmd.AddCommand(runCmd)
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	log, err := gateway.NewLogger(level, cfg.Log.Source)
	if err != nil {
		return err
	}
	gateway.SetDefaultLogger(log)

	gw, err := gateway.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting", "config", configPath, "version", version)
	return gw.Run(ctx)
}
