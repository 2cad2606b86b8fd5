package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostMerge_HealthyRepoPasses(t *testing.T) {
	env := newTestEnv(t)
	o := env.orchestrator(t)

	res := o.Run(context.Background(), PostMerge, Args{})

	assert.True(t, res.Success)
	assert.Equal(t, StatusPassed, res.Results["repoStateValidation"].Status)
	assert.Equal(t, StatusPassed, res.Results["mergeAnalysis"].Status)
	assert.Nil(t, res.Rollback)
	assert.Nil(t, res.Troubleshooting)
}

func TestPostMerge_ValidationFailureProducesRollbackAdvice(t *testing.T) {
	env := newTestEnv(t)
	env.repo.clean = false
	env.repo.unmerged = true
	env.repo.files = map[string]bool{}
	env.repo.hasRemote = true
	o := env.orchestrator(t)

	res := o.Run(context.Background(), PostMerge, Args{})

	// The merge already happened: the hook still succeeds.
	assert.True(t, res.Success)

	validation := res.Results["repoStateValidation"]
	assert.Equal(t, StatusFailed, validation.Status)
	issues, ok := validation.Fields["issues"].([]string)
	require.True(t, ok)
	assert.Contains(t, issues, "unmerged paths remain")
	assert.Contains(t, issues, "critical file missing: go.mod")

	require.NotNil(t, res.Rollback)
	// main is protected, so revert wins over reset.
	assert.Equal(t, "revert", res.Rollback.Strategy)
	assert.Contains(t, res.Rollback.Commands, "git revert -m 1 HEAD")
	assert.False(t, res.Rollback.ForcePushNeeded)

	require.NotNil(t, res.Troubleshooting)
	assert.Equal(t, "repoStateValidation", res.Troubleshooting.FailureType)
	assert.NotEmpty(t, res.Troubleshooting.DiagnosticSteps)
}

func TestPostMerge_ResetAdviceOnFeatureBranch(t *testing.T) {
	env := newTestEnv(t)
	env.repo.branch = "feature/sync"
	env.repo.clean = false
	env.repo.hasRemote = true
	o := env.orchestrator(t)

	res := o.Run(context.Background(), PostMerge, Args{})

	require.NotNil(t, res.Rollback)
	assert.Equal(t, "reset", res.Rollback.Strategy)
	assert.True(t, res.Rollback.ForcePushNeeded)
	assert.Contains(t, res.Rollback.Warning, "force-with-lease")
}

func TestPostMerge_MultipleFailuresAggregate(t *testing.T) {
	env := newTestEnv(t)
	env.repo.clean = false
	env.notifier.err = errors.New("workflow endpoint down")
	o := env.orchestrator(t)

	res := o.Run(context.Background(), PostMerge, Args{})

	assert.True(t, res.Success)
	assert.True(t, res.MultipleFailures)
	assert.Equal(t, 2, res.FailureCount)
	assert.Equal(t, "integrationWorkflow", res.Troubleshooting.FailureType)
}

func TestPostMerge_PersistsAnalysisReport(t *testing.T) {
	env := newTestEnv(t)
	o := env.orchestrator(t)

	res := o.Run(context.Background(), PostMerge, Args{})

	key, ok := res.Results["mergeAnalysis"].Fields["reportKey"].(string)
	require.True(t, ok)
	doc, err := env.store.Read(context.Background(), key)
	require.NoError(t, err)
	assert.Contains(t, doc, `"branch": "main"`)
}
