package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hookd/internal/recovery"
)

// runPostMerge validates the repository after a merge and persists an
// analysis report. The merge already landed, so the hook always
// succeeds; failures surface as rollback advice and troubleshooting.
func (o *Orchestrator) runPostMerge(ctx context.Context, _ Args, res *Result) {
	o.exec(ctx, PostMerge, res, "integrationWorkflow", func(ctx context.Context) StepResult {
		return o.notificationStep(ctx, PostMerge, map[string]any{"branch": res.Branch})
	})
	validation := o.exec(ctx, PostMerge, res, "repoStateValidation", func(ctx context.Context) StepResult {
		return o.repoStateValidationStep(ctx, res.Branch)
	})
	o.exec(ctx, PostMerge, res, "mergeAnalysis", func(ctx context.Context) StepResult {
		return o.mergeAnalysisStep(ctx, res.Branch, validation)
	})

	o.adviseOnMergeFailures(res)
}

// repoStateValidationStep checks the tree is in a sane state after the
// merge: clean, conflict-free, on a valid branch, with the critical
// files present and a readable journal.
func (o *Orchestrator) repoStateValidationStep(ctx context.Context, branch string) StepResult {
	var issues []string

	clean, err := o.repo.IsClean()
	if err != nil {
		return o.stepFailure(ctx, PostMerge, err)
	}
	if !clean {
		issues = append(issues, "working tree not clean after merge")
	}

	unmerged, err := o.repo.HasUnmergedPaths()
	if err != nil {
		return o.stepFailure(ctx, PostMerge, err)
	}
	if unmerged {
		issues = append(issues, "unmerged paths remain")
	}

	if branch == "" {
		issues = append(issues, "HEAD is detached")
	}
	for _, f := range o.cfg.Git.CriticalFiles {
		if !o.repo.FileExists(f) {
			issues = append(issues, "critical file missing: "+f)
		}
	}
	if o.journal != nil {
		if _, err := o.journal.Load(); err != nil {
			issues = append(issues, "running-context journal unreadable: "+err.Error())
		}
	}

	if len(issues) > 0 {
		return failed(strings.Join(issues, "; ")).With("issues", issues)
	}
	return passed()
}

// mergeAnalysisStep persists the merge outcome for later review.
func (o *Orchestrator) mergeAnalysisStep(ctx context.Context, branch string, validation StepResult) StepResult {
	doc, err := json.MarshalIndent(struct {
		Branch     string `json:"branch"`
		Timestamp  string `json:"timestamp"`
		Validation string `json:"validation"`
		Issues     any    `json:"issues,omitempty"`
	}{
		Branch:     branch,
		Timestamp:  o.now().UTC().Format("2006-01-02T15:04:05Z"),
		Validation: string(validation.Status),
		Issues:     validation.Fields["issues"],
	}, "", "  ")
	if err != nil {
		return o.stepFailure(ctx, PostMerge, err)
	}
	key := fmt.Sprintf("reports/post-merge/%s.json", o.now().UTC().Format("20060102T150405Z"))
	if err := o.persistReport(ctx, key, string(doc)); err != nil {
		return o.stepFailure(ctx, PostMerge,
			recovery.NewError(recovery.CategoryMetricsFailure, "merge analysis persistence: %v", err))
	}
	return passed().With("reportKey", key)
}

// adviseOnMergeFailures attaches rollback advice and a troubleshooting
// block when any post-merge step failed.
func (o *Orchestrator) adviseOnMergeFailures(res *Result) {
	var failedSteps []string
	var firstMessage string
	for _, name := range []string{"integrationWorkflow", "repoStateValidation", "mergeAnalysis"} {
		if step, ok := res.Results[name]; ok && step.Status == StatusFailed {
			failedSteps = append(failedSteps, name)
			if firstMessage == "" {
				firstMessage = step.Error
			}
		}
	}
	if len(failedSteps) == 0 {
		return
	}

	res.Rollback = o.rollbackAdvice(res.Branch)
	res.Troubleshooting = &Troubleshooting{
		FailureType:  failedSteps[0],
		ErrorMessage: firstMessage,
		DiagnosticSteps: []string{
			"Run git status to inspect the working tree",
			"Check git log --merges -1 for the merge commit",
			"Review the persisted merge analysis report",
		},
	}
	if len(failedSteps) > 1 {
		res.MultipleFailures = true
		res.FailureCount = len(failedSteps)
	}

	o.logger.Warn("post-merge validation failed",
		zap.Strings("steps", failedSteps),
		zap.String("branch", res.Branch))
}

// rollbackAdvice prefers revert on protected branches: resetting
// rewrites history that other clones may already have.
func (o *Orchestrator) rollbackAdvice(branch string) *RollbackAdvice {
	hasRemote := o.repo.HasRemote()
	if o.cfg.IsProtectedBranch(branch) {
		advice := &RollbackAdvice{
			Strategy: "revert",
			Steps: []string{
				"Revert the merge commit, preserving history",
				"Push the revert like any other commit",
			},
			Commands: []string{"git revert -m 1 HEAD", "git push"},
		}
		if hasRemote {
			advice.Warning = "do not reset a protected branch: the remote already has the merge"
		}
		return advice
	}

	advice := &RollbackAdvice{
		Strategy: "reset",
		Steps:    []string{"Reset the branch to its pre-merge state"},
		Commands: []string{"git reset --hard ORIG_HEAD"},
	}
	if hasRemote {
		advice.ForcePushNeeded = true
		advice.Warning = "the branch was pushed: a reset requires git push --force-with-lease"
	}
	return advice
}
