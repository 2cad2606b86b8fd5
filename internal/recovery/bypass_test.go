package recovery

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFor(t *testing.T) {
	t.Run("non-blocking needs no bypass", func(t *testing.T) {
		opts := OptionsFor(Classification{Category: CategoryMetricsFailure, Severity: SeverityNonBlocking})
		assert.False(t, opts.Available)
		assert.Empty(t, opts.Methods)
	})

	t.Run("hard blocking non-bypassable gets none", func(t *testing.T) {
		opts := OptionsFor(Classification{
			Category: CategoryTestFailure, Severity: SeverityBlocking, BlockingType: BlockingHard,
		})
		assert.False(t, opts.Available)
		assert.Contains(t, opts.Reason, "TEST_FAILURE")
	})

	t.Run("bypassable blocking lists emergency", func(t *testing.T) {
		opts := OptionsFor(Classification{
			Category: CategoryInvalidCommitMessage, Severity: SeverityBlocking,
			BlockingType: BlockingHard, Bypassable: true,
		})
		assert.True(t, opts.Available)
		assert.Contains(t, opts.Methods, MethodPrefix)
		assert.Contains(t, opts.Methods, MethodEmergency)
	})

	t.Run("warning omits emergency", func(t *testing.T) {
		opts := OptionsFor(Classification{
			Category: CategoryMissingContextUpdate, Severity: SeverityWarning, Bypassable: true,
		})
		assert.True(t, opts.Available)
		assert.NotContains(t, opts.Methods, MethodEmergency)
		assert.Contains(t, opts.Methods, MethodDevelopmentMode)
	})
}

func TestAuditLog_AppendAndReplay(t *testing.T) {
	log := NewAuditLog(filepath.Join(t.TempDir(), "audit", "bypass.jsonl"))

	require.NoError(t, log.Record(BypassRecord{
		HookType:      "commit-msg",
		ErrorCategory: CategoryInvalidCommitMessage,
		Method:        MethodPrefix,
		Reason:        "WIP commit during development",
	}))
	require.NoError(t, log.Record(BypassRecord{
		HookType:      "pre-push",
		ErrorCategory: CategoryLintError,
		Method:        MethodEmergency,
		Reason:        "hotfix for production incident",
	}))

	trail, err := log.Trail()
	require.NoError(t, err)
	require.Len(t, trail, 2)

	assert.Equal(t, "commit-msg", trail[0].HookType)
	assert.Equal(t, MethodPrefix, trail[0].Method)
	assert.Equal(t, "prefix", trail[0].AuditTrail.BypassType)
	assert.False(t, trail[0].Timestamp.IsZero())

	assert.Equal(t, MethodEmergency, trail[1].Method)
	assert.Equal(t, "hotfix for production incident", trail[1].Reason)
}

func TestAuditLog_EmptyTrail(t *testing.T) {
	log := NewAuditLog(filepath.Join(t.TempDir(), "bypass.jsonl"))
	trail, err := log.Trail()
	require.NoError(t, err)
	assert.Empty(t, trail)
}

func TestAuditLog_PreservesExplicitTimestamps(t *testing.T) {
	log := NewAuditLog(filepath.Join(t.TempDir(), "bypass.jsonl"))
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.Record(BypassRecord{
		Timestamp:     ts,
		HookType:      "commit-msg",
		ErrorCategory: CategoryInvalidCommitMessage,
		Method:        MethodEnvironment,
		Reason:        "scripted migration commits",
	}))

	trail, err := log.Trail()
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.True(t, trail[0].Timestamp.Equal(ts))
}
