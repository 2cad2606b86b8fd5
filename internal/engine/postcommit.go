package engine

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/hookd/internal/journal"
	"github.com/fyrsmithlabs/hookd/internal/recovery"
)

// runPostCommit performs the after-commit side effects. Every step is
// best-effort: the commit already exists, so nothing here may fail the
// hook.
func (o *Orchestrator) runPostCommit(ctx context.Context, _ Args, res *Result) {
	changed, err := o.repo.LastCommitFiles()
	if err != nil {
		res.Results["changedFiles"] = o.stepFailure(ctx, PostCommit, err)
	}

	o.exec(ctx, PostCommit, res, "metricsUpdate", o.metricsUpdateStep)
	o.exec(ctx, PostCommit, res, "documentation", func(ctx context.Context) StepResult {
		return o.documentationStep(ctx, changed)
	})
	o.exec(ctx, PostCommit, res, "journalRegistration", func(ctx context.Context) StepResult {
		return o.journalRegistrationStep(ctx, changed)
	})
	o.exec(ctx, PostCommit, res, "notification", func(ctx context.Context) StepResult {
		return o.notificationStep(ctx, PostCommit, map[string]any{
			"branch": res.Branch,
			"files":  len(changed),
		})
	})
}

// metricsUpdateStep persists the aggregate metrics document.
func (o *Orchestrator) metricsUpdateStep(ctx context.Context) StepResult {
	snap, err := o.tracker.SnapshotJSON()
	if err != nil {
		return o.stepFailure(ctx, PostCommit,
			recovery.NewError(recovery.CategoryMetricsFailure, "metrics snapshot: %v", err))
	}
	if err := o.persistReport(ctx, "metrics/summary.json", snap); err != nil {
		return o.stepFailure(ctx, PostCommit,
			recovery.NewError(recovery.CategoryMetricsFailure, "metrics persistence: %v", err))
	}
	return passed()
}

// documentationStep regenerates docs only when the commit touched
// source or documentation files.
func (o *Orchestrator) documentationStep(ctx context.Context, changed []string) StepResult {
	trigger := false
	for _, f := range changed {
		if isCodeFile(f) || isDocFile(f) {
			trigger = true
			break
		}
	}
	if !trigger {
		return skipped().With("docsRegenerated", false)
	}

	out, err := o.runTool(ctx, o.cfg.Tools.Docs, o.cfg.Timeouts.Build)
	if err != nil {
		return o.stepFailure(ctx, PostCommit, err)
	}
	if !out.Ok() {
		return o.stepFailure(ctx, PostCommit,
			recovery.NewError(recovery.CategoryDocumentationFailure,
				"documentation regeneration failed: %s", outputSummary(out)))
	}
	return passed().With("docsRegenerated", true)
}

// journalRegistrationStep records the commit in the running-context
// journal when it touched code.
func (o *Orchestrator) journalRegistrationStep(ctx context.Context, changed []string) StepResult {
	codeFiles := filterCodeFiles(changed)
	if len(codeFiles) == 0 {
		return skipped().With("reason", "no code changes")
	}
	if o.journal == nil {
		return skipped().With("reason", "journal not configured")
	}
	entry := journal.Entry{
		Step:    string(PostCommit),
		Summary: fmt.Sprintf("commit touched %d code files", len(codeFiles)),
		Files:   codeFiles,
	}
	if err := o.journal.Append(ctx, entry); err != nil {
		return o.stepFailure(ctx, PostCommit, err)
	}
	return passed().With("filesRegistered", len(codeFiles))
}

// notificationStep delivers a fire-and-forget event to the external
// orchestrator.
func (o *Orchestrator) notificationStep(ctx context.Context, hook HookType, payload map[string]any) StepResult {
	if err := o.notifier.Notify(ctx, string(hook), payload); err != nil {
		return o.stepFailure(ctx, hook,
			recovery.NewError(recovery.CategoryNotificationFailure, "notification failed: %v", err))
	}
	return passed()
}
