package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hookd/internal/recovery"
)

// prePushChecks is the fixed step order; the failure report counts
// against it.
var prePushChecks = []string{"fullTests", "buildValidation", "securityAudit", "workflowSync"}

// runPrePush gates the push on the full test suite, the build, and the
// dependency vulnerability scan, then reports any active external
// workflow. Failures produce a structured report plus remediation.
func (o *Orchestrator) runPrePush(ctx context.Context, args Args, res *Result) {
	o.exec(ctx, PrePush, res, "fullTests", o.fullTestStep)
	o.exec(ctx, PrePush, res, "buildValidation", o.buildStep)
	o.exec(ctx, PrePush, res, "securityAudit", o.securityAuditStep)
	o.exec(ctx, PrePush, res, "workflowSync", o.workflowSyncStep)

	o.assembleFailureReport(ctx, args, res)
}

// fullTestStep runs the whole suite with coverage under the test lock.
func (o *Orchestrator) fullTestStep(ctx context.Context) StepResult {
	if !o.cfg.Hooks.EnableTesting {
		return skipped().With("reason", "testing disabled")
	}

	var step StepResult
	err := o.withLock(ctx, "tests", func() error {
		out, err := o.runTool(ctx, o.cfg.Tools.TestFull, o.cfg.Timeouts.FullTest)
		if err != nil {
			return err
		}
		switch {
		case out.TimedOut:
			step = o.stepFailure(ctx, PrePush,
				recovery.NewError(recovery.CategoryTimeout, "full test suite timed out after %v", o.cfg.Timeouts.FullTest))
			return nil
		case out.StartError != "":
			step = warning("test tool unavailable: " + out.StartError)
			return nil
		case !out.Ok():
			step = o.stepFailure(ctx, PrePush,
				recovery.NewError(recovery.CategoryTestFailure, "test suite failed: %s", outputSummary(out)))
			return nil
		}

		step = passed()
		coverage := parseCoverage(out.Stdout)
		if coverage >= 0 {
			step = step.With("coverage", coverage)
			if t := o.cfg.Hooks.CoverageThreshold; t > 0 && coverage < t {
				step = o.stepFailure(ctx, PrePush, &recovery.CoverageError{
					Gaps:      map[string]float64{"statements": coverage},
					Threshold: t,
				}).With("coverage", coverage)
			}
		}
		return nil
	})
	if err != nil {
		return o.stepFailure(ctx, PrePush, err)
	}
	return step
}

// buildStep verifies the tree still compiles.
func (o *Orchestrator) buildStep(ctx context.Context) StepResult {
	out, err := o.runTool(ctx, o.cfg.Tools.Build, o.cfg.Timeouts.Build)
	if err != nil {
		return o.stepFailure(ctx, PrePush, err)
	}
	switch {
	case out.TimedOut:
		return o.stepFailure(ctx, PrePush,
			recovery.NewError(recovery.CategoryTimeout, "build timed out after %v", o.cfg.Timeouts.Build))
	case out.StartError != "":
		return warning("build tool unavailable: " + out.StartError)
	case !out.Ok():
		return o.stepFailure(ctx, PrePush,
			recovery.NewError(recovery.CategoryBuildFailure, "build failed: %s", outputSummary(out)))
	}
	return passed()
}

// securityAuditStep fails the push on any critical or high finding.
func (o *Orchestrator) securityAuditStep(ctx context.Context) StepResult {
	sum, err := o.scanner.Scan(ctx)
	if err != nil {
		return o.stepFailure(ctx, PrePush, err)
	}
	step := StepResult{Status: StatusPassed, Fields: map[string]any{
		"critical": sum.Critical,
		"high":     sum.High,
		"medium":   sum.Medium,
		"low":      sum.Low,
	}}
	if sum.Blocking() {
		fail := o.stepFailure(ctx, PrePush,
			recovery.NewError(recovery.CategorySecurityVulnerability,
				"%d critical and %d high vulnerabilities found", sum.Critical, sum.High))
		for k, v := range step.Fields {
			fail = fail.With(k, v)
		}
		return fail
	}
	return step
}

// workflowSyncStep reports whether an external persona workflow is in
// flight, so reviewers see its phase next to the push.
func (o *Orchestrator) workflowSyncStep(ctx context.Context) StepResult {
	if o.journal == nil {
		return skipped().With("reason", "journal not configured")
	}
	doc, err := o.journal.Load()
	if err != nil {
		return o.stepFailure(ctx, PrePush, err)
	}
	for i := len(doc.Entries) - 1; i >= 0; i-- {
		e := doc.Entries[i]
		if e.Persona != "" {
			return passed().
				With("activeWorkflow", true).
				With("persona", e.Persona).
				With("phase", e.Step)
		}
	}
	return passed().With("activeWorkflow", false)
}

// assembleFailureReport turns failed checks into the user-visible
// report and remediation, persisted for later inspection.
func (o *Orchestrator) assembleFailureReport(ctx context.Context, args Args, res *Result) {
	var failures []FailureDetail
	for _, name := range prePushChecks {
		if step, ok := res.Results[name]; ok && step.Status == StatusFailed {
			failures = append(failures, FailureDetail{Check: name, Message: step.Error})
		}
	}
	if len(failures) == 0 {
		return
	}

	res.FailureReport = &FailureReport{
		Type:      string(PrePush),
		Timestamp: o.now().UTC(),
		Failures:  failures,
		Summary: FailureSummary{
			TotalChecks:  len(prePushChecks),
			FailedChecks: len(failures),
		},
	}
	res.Remediation = remediationFor(failures)

	doc, err := json.MarshalIndent(struct {
		Report      *FailureReport `json:"report"`
		Remediation *Remediation   `json:"remediation"`
		Remote      string         `json:"remote,omitempty"`
	}{res.FailureReport, res.Remediation, args.Remote}, "", "  ")
	if err != nil {
		o.logger.Warn("failure report serialization failed", zap.Error(err))
		return
	}
	key := fmt.Sprintf("reports/pre-push/%s.json", o.now().UTC().Format("20060102T150405Z"))
	if err := o.persistReport(ctx, key, string(doc)); err != nil {
		o.logger.Warn("failure report persistence failed", zap.Error(err))
	}
}

// remediationFor maps failed checks to concrete next actions.
func remediationFor(failures []FailureDetail) *Remediation {
	rem := &Remediation{}
	for _, f := range failures {
		switch f.Check {
		case "fullTests":
			rem.Steps = append(rem.Steps, "Fix the failing tests before pushing")
			rem.Commands = append(rem.Commands, "go test ./...")
		case "buildValidation":
			rem.Steps = append(rem.Steps, "Fix the compilation errors")
			rem.Commands = append(rem.Commands, "go build ./...")
		case "securityAudit":
			rem.Steps = append(rem.Steps, "Upgrade the vulnerable dependencies")
			rem.Commands = append(rem.Commands, "govulncheck ./...", "go get -u ./... && go mod tidy")
		case "workflowSync":
			rem.Steps = append(rem.Steps, "Finish or hand off the active workflow phase")
		}
	}
	return rem
}
