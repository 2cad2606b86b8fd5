package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hookd/internal/breaker"
	"github.com/fyrsmithlabs/hookd/internal/recovery"
)

// runPreCommit validates the staged changes: lint the eligible files,
// run the fast test slice, and check that source changes come with a
// journal update. The policy gate gets the final word in settleVerdict.
func (o *Orchestrator) runPreCommit(ctx context.Context, _ Args, res *Result) {
	staged, err := o.repo.StagedFiles()
	if err != nil {
		res.Results["staging"] = o.stepFailure(ctx, PreCommit, err)
		return
	}
	codeFiles := filterCodeFiles(staged)

	o.exec(ctx, PreCommit, res, "linting", func(ctx context.Context) StepResult {
		return o.lintStep(ctx, codeFiles)
	})
	o.exec(ctx, PreCommit, res, "fastTests", func(ctx context.Context) StepResult {
		return o.fastTestStep(ctx, codeFiles)
	})
	o.exec(ctx, PreCommit, res, "journalCheck", func(ctx context.Context) StepResult {
		return o.journalCheckStep(ctx, staged, codeFiles)
	})
}

// lintStep runs the configured linter over the staged code files. With
// nothing eligible the linter is never invoked.
func (o *Orchestrator) lintStep(ctx context.Context, codeFiles []string) StepResult {
	if !o.cfg.Hooks.EnableLinting {
		return skipped().With("reason", "linting disabled")
	}
	if len(codeFiles) == 0 {
		return skipped().With("filesProcessed", 0)
	}

	out, err := o.runTool(ctx, o.cfg.Tools.Lint, o.cfg.Timeouts.Lint)
	if err != nil {
		return o.stepFailure(ctx, PreCommit, err)
	}
	switch {
	case out.TimedOut:
		return o.stepFailure(ctx, PreCommit,
			recovery.NewError(recovery.CategoryTimeout, "lint timed out after %v", o.cfg.Timeouts.Lint))
	case out.StartError != "":
		return warning("lint tool unavailable: " + out.StartError)
	case !out.Ok():
		return o.stepFailure(ctx, PreCommit,
			recovery.NewError(recovery.CategoryLintError, "lint: %s", outputSummary(out))).
			With("filesProcessed", len(codeFiles))
	}
	return passed().With("filesProcessed", len(codeFiles))
}

// fastTestStep runs the short test slice under the shared test lock.
// The lock keeps two rapid commits from racing the same build cache.
func (o *Orchestrator) fastTestStep(ctx context.Context, codeFiles []string) StepResult {
	if !o.cfg.Hooks.EnableTesting {
		return skipped().With("reason", "testing disabled")
	}
	if len(codeFiles) == 0 {
		return skipped().With("reason", "no staged code changes")
	}
	if o.tracker.ShouldBypassInDevelopment() {
		o.recordBypass(PreCommit, recovery.MethodDevelopmentMode, "recent hook runs exceeded the performance threshold")
		return skipped().With("reason", "development-mode bypass")
	}

	var step StepResult
	err := o.withLock(ctx, "tests", func() error {
		out, err := o.runTool(ctx, o.cfg.Tools.TestFast, o.cfg.Timeouts.FastTest)
		if err != nil {
			return err
		}
		switch {
		case out.TimedOut:
			step = o.stepFailure(ctx, PreCommit,
				recovery.NewError(recovery.CategoryTimeout, "fast test slice timed out after %v", o.cfg.Timeouts.FastTest))
		case out.StartError != "":
			step = warning("test tool unavailable: " + out.StartError)
		case !out.Ok():
			step = o.stepFailure(ctx, PreCommit,
				recovery.NewError(recovery.CategoryTestFailure, "fast tests failed: %s", outputSummary(out)))
		default:
			step = passed()
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, breaker.ErrLockTimeout) {
			return warning("test lock held by another hook process")
		}
		return o.stepFailure(ctx, PreCommit, err)
	}
	return step
}

// journalCheckStep fails softly when staged source changes carry no
// matching update to the running-context journal.
func (o *Orchestrator) journalCheckStep(ctx context.Context, staged, codeFiles []string) StepResult {
	if !o.cfg.Hooks.EnableContextValidation {
		return skipped().With("reason", "context validation disabled")
	}
	if len(codeFiles) == 0 {
		return passed().With("checked", false)
	}
	if containsPath(staged, o.cfg.Git.JournalPath) {
		return passed().With("checked", true)
	}
	return o.stepFailure(ctx, PreCommit,
		recovery.NewError(recovery.CategoryMissingContextUpdate,
			"%d code files staged without a journal update", len(codeFiles)))
}

// recordBypass appends one audit entry; a failed write is logged and
// swallowed so the bypass itself still applies.
func (o *Orchestrator) recordBypass(hook HookType, method recovery.Method, reason string) recovery.BypassRecord {
	rec := recovery.BypassRecord{
		Timestamp: o.now().UTC(),
		HookType:  string(hook),
		Method:    method,
		Reason:    reason,
	}
	if hook == CommitMsg {
		rec.ErrorCategory = recovery.CategoryInvalidCommitMessage
	}
	if o.audit != nil {
		if err := o.audit.Record(rec); err != nil {
			o.logger.Warn("bypass audit write failed", zap.Error(err))
		}
	}
	return rec
}
