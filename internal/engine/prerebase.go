package engine

import (
	"context"
	"fmt"
)

// largeRebaseThreshold is the commit count above which a rebase gets a
// warning.
const largeRebaseThreshold = 20

// runPreRebase checks that the rebase is safe to start: clean tree, no
// lingering conflicts, not rewriting a protected branch, and a commit
// range that the message grammar can survive.
func (o *Orchestrator) runPreRebase(ctx context.Context, args Args, res *Result) {
	commits := o.rebaseRange(args.Upstream)

	o.exec(ctx, PreRebase, res, "safetyValidation", func(ctx context.Context) StepResult {
		return o.rebaseSafetyStep(ctx, res.Branch)
	})
	o.exec(ctx, PreRebase, res, "commitPatternCheck", func(ctx context.Context) StepResult {
		return o.rebasePatternStep(ctx, args.Upstream, commits)
	})
	o.exec(ctx, PreRebase, res, "conflictDetection", func(ctx context.Context) StepResult {
		return o.conflictDetectionStep(ctx)
	})
	o.exec(ctx, PreRebase, res, "commitCountAnalysis", func(context.Context) StepResult {
		if commits == nil {
			return skipped().With("reason", "no upstream given")
		}
		step := passed().With("commitCount", len(commits))
		if len(commits) > largeRebaseThreshold {
			step = warning(fmt.Sprintf("rebasing %d commits; consider splitting", len(commits))).
				With("commitCount", len(commits))
		}
		return step
	})
}

// rebaseRange resolves the commits about to be rewritten. A nil return
// means the range could not be determined.
func (o *Orchestrator) rebaseRange(upstream string) []CommitInfo {
	if upstream == "" {
		return nil
	}
	upstreamHash, err := o.repo.ResolveRevision(upstream)
	if err != nil {
		return nil
	}
	headHash, err := o.repo.ResolveRevision("HEAD")
	if err != nil {
		return nil
	}
	commits, err := o.repo.CommitsBetween(upstreamHash, headHash)
	if err != nil {
		return nil
	}
	return commits
}

func (o *Orchestrator) rebaseSafetyStep(ctx context.Context, branch string) StepResult {
	clean, err := o.repo.IsClean()
	if err != nil {
		return o.stepFailure(ctx, PreRebase, err)
	}
	if !clean {
		return failed("uncommitted changes present; commit or stash before rebasing")
	}
	if o.cfg.IsProtectedBranch(branch) {
		return failed("rebasing protected branch " + branch + " rewrites published history")
	}
	return passed()
}

// rebasePatternStep counts commits in the range whose messages fail the
// grammar: rewriting them is the moment to fix the messages.
func (o *Orchestrator) rebasePatternStep(ctx context.Context, upstream string, commits []CommitInfo) StepResult {
	if upstream == "" {
		return skipped().With("reason", "no upstream given")
	}
	if commits == nil {
		return warning("could not resolve rebase range " + upstream + "..HEAD")
	}

	invalid := 0
	for _, c := range commits {
		vr, err := o.validator.Validate(ctx, c.Message)
		if err != nil {
			return o.stepFailure(ctx, PreRebase, err)
		}
		if !vr.Valid {
			invalid++
		}
	}
	if invalid > 0 {
		return warning(fmt.Sprintf("%d of %d commits have non-conforming messages", invalid, len(commits))).
			With("invalidCommits", invalid)
	}
	return passed().With("invalidCommits", 0)
}

func (o *Orchestrator) conflictDetectionStep(ctx context.Context) StepResult {
	unmerged, err := o.repo.HasUnmergedPaths()
	if err != nil {
		return o.stepFailure(ctx, PreRebase, err)
	}
	if unmerged {
		return failed("unresolved merge conflicts present")
	}
	return passed()
}
