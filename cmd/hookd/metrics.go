package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/hookd/internal/engine"
	"github.com/fyrsmithlabs/hookd/internal/logging"
	"github.com/fyrsmithlabs/hookd/internal/statestore"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show the persisted hook performance metrics",
	Long: `Show the aggregate metrics document written by post-commit: totals,
success rate, per-event breakdown, and optimization recommendations.`,
	Args: cobra.NoArgs,
	RunE: runMetrics,
}

func runMetrics(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	repo, err := engine.OpenRepo(".")
	if err != nil {
		return err
	}
	store, err := statestore.NewGitStore(repo.Root(), cfg.Git.StateBranch)
	if err != nil {
		return err
	}

	doc, err := store.Read(cmd.Context(), "metrics/summary.json")
	if err != nil {
		if errors.Is(err, statestore.ErrNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "no metrics recorded yet")
			return nil
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), doc)
	return nil
}
