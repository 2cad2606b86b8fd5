package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hookd/internal/recovery"
)

const (
	// zeroHash marks ref creation or deletion in a pre-receive line.
	zeroHash = "0000000000000000000000000000000000000000"

	// pushSizeFailLimit and pushSizeWarnLimit bound accepted pushes.
	pushSizeFailLimit = 50
	pushSizeWarnLimit = 20
)

// runPreReceive validates a server-side push: message grammar across
// the whole range, branch protection, author identity, push size, and
// force-push detection.
func (o *Orchestrator) runPreReceive(ctx context.Context, args Args, res *Result) {
	ranges := o.pushRanges(args.RefUpdates)

	o.exec(ctx, PreReceive, res, "commitPatternValidation", func(ctx context.Context) StepResult {
		return o.pushPatternStep(ctx, ranges)
	})
	o.exec(ctx, PreReceive, res, "branchProtection", func(context.Context) StepResult {
		return o.branchProtectionStep(args.RefUpdates)
	})
	o.exec(ctx, PreReceive, res, "authorValidation", func(context.Context) StepResult {
		return o.authorValidationStep(ranges)
	})
	o.exec(ctx, PreReceive, res, "pushSize", func(context.Context) StepResult {
		return o.pushSizeStep(ranges)
	})
	o.exec(ctx, PreReceive, res, "forcePushDetection", func(ctx context.Context) StepResult {
		return o.forcePushStep(ctx, args.RefUpdates)
	})
}

// pushRanges resolves the new commits per updated ref. Deletions carry
// no commits to validate.
func (o *Orchestrator) pushRanges(updates []RefUpdate) map[string][]CommitInfo {
	ranges := make(map[string][]CommitInfo, len(updates))
	for _, u := range updates {
		if u.NewHash == zeroHash {
			continue
		}
		commits, err := o.repo.CommitsBetween(u.OldHash, u.NewHash)
		if err != nil {
			o.logger.Warn("push range walk failed",
				zap.String("ref", u.RefName), zap.Error(err))
			continue
		}
		ranges[u.RefName] = commits
	}
	return ranges
}

// pushPatternStep validates every pushed commit message.
func (o *Orchestrator) pushPatternStep(ctx context.Context, ranges map[string][]CommitInfo) StepResult {
	total, invalid := 0, 0
	for _, commits := range ranges {
		for _, c := range commits {
			total++
			vr, err := o.validator.Validate(ctx, c.Message)
			if err != nil {
				return o.stepFailure(ctx, PreReceive, err)
			}
			if !vr.Valid {
				invalid++
			}
		}
	}
	if invalid > 0 {
		return o.stepFailure(ctx, PreReceive,
			recovery.NewError(recovery.CategoryInvalidCommitMessage,
				"%d of %d pushed commits have non-conforming messages", invalid, total)).
			With("invalidCommits", invalid).
			With("totalCommits", total)
	}
	return passed().With("totalCommits", total)
}

// branchProtectionStep rejects deletion of protected refs.
func (o *Orchestrator) branchProtectionStep(updates []RefUpdate) StepResult {
	var violations []string
	for _, u := range updates {
		branch := strings.TrimPrefix(u.RefName, "refs/heads/")
		if !o.cfg.IsProtectedBranch(branch) {
			continue
		}
		if u.NewHash == zeroHash {
			violations = append(violations, "deletion of protected branch "+branch)
		}
	}
	if len(violations) > 0 {
		return failed(strings.Join(violations, "; ")).With("violations", violations)
	}
	return passed()
}

// authorValidationStep requires every pushed commit to carry an author
// name and email.
func (o *Orchestrator) authorValidationStep(ranges map[string][]CommitInfo) StepResult {
	missing := 0
	for _, commits := range ranges {
		for _, c := range commits {
			if strings.TrimSpace(c.AuthorName) == "" || strings.TrimSpace(c.AuthorEmail) == "" {
				missing++
			}
		}
	}
	if missing > 0 {
		return failed(fmt.Sprintf("%d commits without author identity", missing)).
			With("missingAuthors", missing)
	}
	return passed()
}

// pushSizeStep bounds push size: oversized pushes are rejected, large
// ones warned about.
func (o *Orchestrator) pushSizeStep(ranges map[string][]CommitInfo) StepResult {
	total := 0
	for _, commits := range ranges {
		total += len(commits)
	}
	switch {
	case total > pushSizeFailLimit:
		return failed(fmt.Sprintf("push of %d commits exceeds the %d commit limit", total, pushSizeFailLimit)).
			With("commitCount", total)
	case total > pushSizeWarnLimit:
		return warning(fmt.Sprintf("large push: %d commits", total)).
			With("commitCount", total)
	}
	return passed().With("commitCount", total)
}

// forcePushStep detects non-fast-forward updates via the ancestor
// check. A force push onto a protected ref is rejected and always
// leaves an audit document behind.
func (o *Orchestrator) forcePushStep(ctx context.Context, updates []RefUpdate) StepResult {
	var forced, protectedForced []string
	for _, u := range updates {
		if u.OldHash == zeroHash || u.NewHash == zeroHash {
			continue
		}
		ancestor, err := o.repo.IsAncestor(u.OldHash, u.NewHash)
		if err != nil {
			return o.stepFailure(ctx, PreReceive, err)
		}
		if ancestor {
			continue
		}
		forced = append(forced, u.RefName)
		branch := strings.TrimPrefix(u.RefName, "refs/heads/")
		if o.cfg.IsProtectedBranch(branch) {
			protectedForced = append(protectedForced, u.RefName)
			o.auditForcePush(ctx, u)
		}
	}

	switch {
	case len(protectedForced) > 0:
		return failed("force push onto protected ref " + strings.Join(protectedForced, ", ")).
			With("forcedRefs", forced)
	case len(forced) > 0:
		return warning("force push detected on " + strings.Join(forced, ", ")).
			With("forcedRefs", forced)
	}
	return passed()
}

// auditForcePush persists the rejected update so the attempt stays
// discoverable even though the push never lands.
func (o *Orchestrator) auditForcePush(ctx context.Context, u RefUpdate) {
	doc, err := json.Marshal(struct {
		Ref       string `json:"ref"`
		OldHash   string `json:"oldHash"`
		NewHash   string `json:"newHash"`
		Timestamp string `json:"timestamp"`
	}{u.RefName, u.OldHash, u.NewHash, o.now().UTC().Format("2006-01-02T15:04:05Z")})
	if err != nil {
		return
	}
	key := fmt.Sprintf("reports/pre-receive/force-push-%s.json", o.now().UTC().Format("20060102T150405.000Z"))
	if err := o.persistReport(ctx, key, string(doc)); err != nil {
		o.logger.Warn("force-push audit persistence failed",
			zap.String("ref", u.RefName), zap.Error(err))
	}
	o.logger.Warn("force push onto protected ref rejected",
		zap.String("ref", u.RefName),
		zap.String("old", u.OldHash),
		zap.String("new", u.NewHash))
}
