package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/hookd/internal/execx"
	"github.com/fyrsmithlabs/hookd/internal/journal"
)

func TestPrePush_CriticalVulnerabilityFailsAudit(t *testing.T) {
	env := newTestEnv(t)
	env.scanner.sum = ScanSummary{Critical: 1, High: 0}
	o := env.orchestrator(t)

	res := o.Run(context.Background(), PrePush, Args{Remote: "origin"})

	assert.False(t, res.Success)
	audit := res.Results["securityAudit"]
	assert.Equal(t, StatusFailed, audit.Status)
	assert.Equal(t, 1, audit.Fields["critical"])
	assert.Equal(t, "origin", res.Remote)
}

func TestPrePush_AllZeroSeveritiesPass(t *testing.T) {
	env := newTestEnv(t)
	o := env.orchestrator(t)

	res := o.Run(context.Background(), PrePush, Args{})

	assert.True(t, res.Success)
	audit := res.Results["securityAudit"]
	assert.Equal(t, StatusPassed, audit.Status)
	assert.Equal(t, 0, audit.Fields["critical"])
	assert.Equal(t, 0, audit.Fields["high"])
	assert.Nil(t, res.FailureReport)
}

func TestPrePush_FailureReportAndRemediation(t *testing.T) {
	env := newTestEnv(t)
	env.runner.Results = map[string]execx.Result{
		"go": {ExitCode: 1, Stderr: "FAIL: TestStore"},
	}
	o := env.orchestrator(t)

	res := o.Run(context.Background(), PrePush, Args{})

	require.False(t, res.Success)
	require.NotNil(t, res.FailureReport)
	assert.Equal(t, "pre-push", res.FailureReport.Type)
	assert.Equal(t, 4, res.FailureReport.Summary.TotalChecks)
	// go runs both the test and build steps, so both fail.
	assert.Equal(t, 2, res.FailureReport.Summary.FailedChecks)

	require.NotNil(t, res.Remediation)
	assert.Contains(t, res.Remediation.Commands, "go test ./...")
	assert.Contains(t, res.Remediation.Commands, "go build ./...")
}

func TestPrePush_CoverageShortfallGetsGuidance(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Hooks.CoverageThreshold = 80
	env.runner.Results = map[string]execx.Result{
		"go": {ExitCode: 0, Stdout: "ok  \thookd/internal/engine\t0.4s\tcoverage: 61.2% of statements\n"},
	}
	o := env.orchestrator(t)

	res := o.Run(context.Background(), PrePush, Args{})

	step := res.Results["fullTests"]
	assert.Equal(t, StatusWarning, step.Status)
	assert.Equal(t, true, step.Fields["recovered"])
	assert.Equal(t, 61.2, step.Fields["coverage"])
	assert.True(t, res.Success)
}

func TestPrePush_WorkflowSyncReportsActivePhase(t *testing.T) {
	env := newTestEnv(t)
	env.journal.doc = journal.Document{
		Branch: "main",
		Entries: []journal.Entry{
			{Persona: "implementer", Step: "build", Summary: "wiring the store"},
		},
	}
	o := env.orchestrator(t)

	res := o.Run(context.Background(), PrePush, Args{})

	sync := res.Results["workflowSync"]
	assert.Equal(t, StatusPassed, sync.Status)
	assert.Equal(t, true, sync.Fields["activeWorkflow"])
	assert.Equal(t, "implementer", sync.Fields["persona"])
	assert.Equal(t, "build", sync.Fields["phase"])
}

func TestParseSeverities(t *testing.T) {
	output := `{"finding": {"severity": "CRITICAL"}}
{"finding": {"severity": "high"}}
Severity: MODERATE
no severity here
{"severity": "low"}`

	sum := parseSeverities(output)
	assert.Equal(t, ScanSummary{Critical: 1, High: 1, Medium: 1, Low: 1}, sum)
}

func TestParseCoverage(t *testing.T) {
	assert.Equal(t, -1.0, parseCoverage("no coverage output"))
	assert.Equal(t, 61.2, parseCoverage("coverage: 61.2% of statements"))
	assert.Equal(t, 50.0, parseCoverage("coverage: 80% of statements\ncoverage: 50% of statements"))
}
