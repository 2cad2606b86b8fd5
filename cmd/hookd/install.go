package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/hookd/internal/engine"
)

// clientHooks are the events installed into .git/hooks. pre-receive is
// server-side and installed on the remote, not here.
var clientHooks = []engine.HookType{
	engine.PreCommit, engine.CommitMsg, engine.PrePush,
	engine.PostCommit, engine.PostMerge, engine.PreRebase,
	engine.PostCheckout,
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the hook scripts into .git/hooks",
	Long: `Install a thin delegating script for each client-side lifecycle
event. Existing hook scripts are not overwritten unless --force is set.`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

var installForce bool

func init() {
	installCmd.Flags().BoolVar(&installForce, "force", false, "overwrite existing hook scripts")
}

func runInstall(cmd *cobra.Command, _ []string) error {
	repo, err := engine.OpenRepo(".")
	if err != nil {
		return err
	}
	hooksDir := filepath.Join(repo.Root(), ".git", "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return fmt.Errorf("create hooks directory: %w", err)
	}

	for _, hook := range clientHooks {
		path := filepath.Join(hooksDir, string(hook))
		if _, err := os.Stat(path); err == nil && !installForce {
			fmt.Fprintf(cmd.OutOrStdout(), "skipping %s: already exists (use --force)\n", hook)
			continue
		}
		script := fmt.Sprintf("#!/bin/sh\nexec hookd run %s \"$@\"\n", hook)
		if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
			return fmt.Errorf("write hook script %s: %w", hook, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", hook)
	}
	return nil
}
