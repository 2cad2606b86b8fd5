package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/hookd/internal/engine"
	"github.com/fyrsmithlabs/hookd/internal/recovery"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Replay the bypass audit trail",
	Long: `Replay the append-only bypass audit log. Every granted bypass is
listed with its method, hook type, and reason; nothing is ever removed
from the log.`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, _ []string) error {
	repo, err := engine.OpenRepo(".")
	if err != nil {
		return err
	}
	log := recovery.NewAuditLog(filepath.Join(repo.Root(), ".git", "hookd", "bypass-audit.jsonl"))

	trail, err := log.Trail()
	if err != nil {
		return err
	}
	if len(trail) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no bypasses recorded")
		return nil
	}
	for _, rec := range trail {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("serialize audit record: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(line))
	}
	return nil
}
