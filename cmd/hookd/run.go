package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hookd/internal/breaker"
	"github.com/fyrsmithlabs/hookd/internal/config"
	"github.com/fyrsmithlabs/hookd/internal/engine"
	"github.com/fyrsmithlabs/hookd/internal/execx"
	"github.com/fyrsmithlabs/hookd/internal/journal"
	"github.com/fyrsmithlabs/hookd/internal/logging"
	"github.com/fyrsmithlabs/hookd/internal/perf"
	"github.com/fyrsmithlabs/hookd/internal/recovery"
	"github.com/fyrsmithlabs/hookd/internal/statestore"
)

var runCmd = &cobra.Command{
	Use:   "run <event> [hook args...]",
	Short: "Run the pipeline for one lifecycle event",
	Long: `Run the pipeline for one git lifecycle event. Hook arguments are
passed through exactly as git provides them:

  hookd run pre-commit
  hookd run commit-msg .git/COMMIT_EDITMSG
  hookd run pre-push origin git@example.com:org/repo.git
  hookd run post-checkout <old> <new> <branch-flag>
  hookd run pre-rebase <upstream> [branch]
  hookd run pre-receive   (ref updates on stdin)`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHook,
}

func runHook(cmd *cobra.Command, argv []string) error {
	hook := engine.HookType(argv[0])
	if !hook.Valid() {
		return fmt.Errorf("unsupported hook type %q", argv[0])
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logging.Sync(logger) }()

	args, err := hookArgs(hook, argv[1:], cmd.InOrStdin())
	if err != nil {
		return err
	}

	orch, err := buildOrchestrator(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	res := orch.Run(cmd.Context(), hook, args)

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !res.Success {
		printFailure(cmd.ErrOrStderr(), res)
		return fmt.Errorf("%s pipeline failed", hook)
	}
	return nil
}

// hookArgs translates git's positional hook arguments into engine args.
func hookArgs(hook engine.HookType, argv []string, stdin io.Reader) (engine.Args, error) {
	var args engine.Args
	switch hook {
	case engine.CommitMsg:
		if len(argv) < 1 {
			return args, fmt.Errorf("commit-msg requires the message file path")
		}
		content, err := os.ReadFile(argv[0])
		if err != nil {
			return args, fmt.Errorf("read commit message: %w", err)
		}
		args.Message = string(content)
	case engine.PrePush:
		if len(argv) > 0 {
			args.Remote = argv[0]
		}
		if len(argv) > 1 {
			args.RemoteURL = argv[1]
		}
	case engine.PreRebase:
		if len(argv) > 0 {
			args.Upstream = argv[0]
		}
	case engine.PostCheckout:
		args.BranchCheckout = len(argv) > 2 && argv[2] == "1"
	case engine.PreReceive:
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			if len(fields) != 3 {
				continue
			}
			args.RefUpdates = append(args.RefUpdates, engine.RefUpdate{
				OldHash: fields[0],
				NewHash: fields[1],
				RefName: fields[2],
			})
		}
		if err := scanner.Err(); err != nil {
			return args, fmt.Errorf("read ref updates: %w", err)
		}
	}
	return args, nil
}

// buildOrchestrator wires the engine against the current repository.
// All hookd-owned state lives under .git/hookd so a clone starts clean.
func buildOrchestrator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*engine.Orchestrator, error) {
	repo, err := engine.OpenRepo(".")
	if err != nil {
		return nil, err
	}
	stateDir := filepath.Join(repo.Root(), ".git", "hookd")

	var store statestore.Store
	store, err = statestore.NewGitStore(repo.Root(), cfg.Git.StateBranch)
	if err != nil {
		logger.Warn("git state store unavailable, falling back to memory", zap.Error(err))
		store = statestore.NewMemStore()
	}

	brk := breaker.New(filepath.Join(stateDir, "breaker.json"), logger)
	locker := breaker.NewLocker(filepath.Join(stateDir, "locks"), cfg.Timeouts.Lock, logger)
	runner := execx.NewOSRunner()

	tracker := perf.NewTracker(perf.Config{
		PerformanceThreshold:  cfg.Performance.PerformanceThreshold,
		OptimizationThreshold: cfg.Performance.OptimizationThreshold,
		DevelopmentMode:       cfg.Hooks.DevelopmentMode,
	}, logger)
	// One process per hook event: rehydrate the execution history the
	// previous process left behind, the way the breaker document works.
	if doc, err := store.Read(ctx, engine.TrackerStateKey); err == nil {
		if err := tracker.RestoreState(doc); err != nil {
			logger.Warn("ignoring corrupt execution history", zap.Error(err))
		}
	} else if !errors.Is(err, statestore.ErrNotFound) {
		logger.Warn("loading execution history failed", zap.Error(err))
	}

	branch, err := repo.CurrentBranch()
	if err != nil {
		logger.Warn("branch detection failed", zap.Error(err))
	}
	jrnl := journal.NewService(
		filepath.Join(repo.Root(), cfg.Git.JournalPath),
		branch, store, locker, logger)

	handler := recovery.NewHandler(recovery.Options{
		MaxAttempts:        cfg.Recovery.MaxAttempts,
		EnableAutoRecovery: cfg.Recovery.EnableAutoRecovery,
		CacheDir:           filepath.Join(stateDir, "cache"),
		FormatTool:         cfg.Tools.Format,
		Runner:             runner,
		Journal:            jrnl,
		Breaker:            brk,
		Logger:             logger,
	})

	orch, err := engine.New(engine.Options{
		Config:   cfg,
		Repo:     repo,
		Runner:   runner,
		Tracker:  tracker,
		Recovery: handler,
		Audit:    recovery.NewAuditLog(filepath.Join(stateDir, "bypass-audit.jsonl")),
		Journal:  jrnl,
		Store:    store,
		Locker:   locker,
		Breaker:  brk,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	orch.SetEnvLookup(os.Getenv)
	return orch, nil
}

// printFailure renders the report and remediation for a blocked event.
func printFailure(w io.Writer, res *engine.Result) {
	fmt.Fprintf(w, "\n%s blocked\n", res.HookType)
	if res.FailureReport != nil {
		fmt.Fprintf(w, "%d of %d checks failed:\n",
			res.FailureReport.Summary.FailedChecks, res.FailureReport.Summary.TotalChecks)
		for _, f := range res.FailureReport.Failures {
			fmt.Fprintf(w, "  - %s: %s\n", f.Check, f.Message)
		}
	} else {
		for name, step := range res.Results {
			if step.Status == engine.StatusFailed {
				fmt.Fprintf(w, "  - %s: %s\n", name, step.Error)
			}
		}
	}
	if res.Remediation != nil {
		if len(res.Remediation.Steps) > 0 {
			fmt.Fprintln(w, "Next steps:")
			for _, s := range res.Remediation.Steps {
				fmt.Fprintf(w, "  - %s\n", s)
			}
		}
		if len(res.Remediation.Commands) > 0 {
			fmt.Fprintln(w, "Commands:")
			for _, c := range res.Remediation.Commands {
				fmt.Fprintf(w, "  $ %s\n", c)
			}
		}
	}
}
