package engine

import "context"

// runPostCheckout restores or initializes the running-context journal
// for the target branch. File checkouts leave the journal alone.
func (o *Orchestrator) runPostCheckout(ctx context.Context, args Args, res *Result) {
	o.exec(ctx, PostCheckout, res, "journalRestore", func(ctx context.Context) StepResult {
		if !args.BranchCheckout {
			return skipped().With("reason", "file checkout")
		}
		if o.journal == nil {
			return skipped().With("reason", "journal not configured")
		}

		branch := args.TargetBranch
		if branch == "" {
			branch = res.Branch
		}
		if branch == "" {
			return skipped().With("reason", "detached HEAD")
		}

		restored, err := o.journal.RestoreOrInit(ctx, branch)
		if err != nil {
			return o.stepFailure(ctx, PostCheckout, err)
		}
		return passed().
			With("branch", branch).
			With("restored", restored)
	})
}
