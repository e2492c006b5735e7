package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/racer-model/racer/config"
	"github.com/racer-model/racer/internal/rlog"
)

var (
	Version = "dev"
	Commit  = "none"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:     "racer",
	Short:   "Racer: a synchronized tree-shaped document store",
	Version: fmt.Sprintf("%s (commit %s)", Version, Commit),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to an HCL config file (racer { ... })")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(snapshotCmd)
}

// loadConfig resolves the effective Config from --config, falling back
// to config.Default(), then applies a --log-level override.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *rlog.Logger {
	return rlog.New(rlog.Settings{Level: cfg.LogLevel})
}
