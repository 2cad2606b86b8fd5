// Package main implements the hookd CLI invoked from git hook scripts.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hookd/internal/config"
	"github.com/fyrsmithlabs/hookd/internal/logging"
)

var (
	// configPath points at the repo-local configuration file.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hookd",
	Short: "Git workflow automation hook engine",
	Long: `hookd runs validation and automation pipelines for git lifecycle
events. Each git hook script delegates to "hookd run <event>"; hookd
executes the event's pipeline and exits non-zero when a pre-* event
must block the operation.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "configuration file path")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(installCmd)
}

// loadConfig reads the configuration and builds the logger from it.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logging: %w", err)
	}
	return cfg, logger, nil
}
