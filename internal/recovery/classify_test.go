package recovery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Categories(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		phase        string
		wantCategory Category
		wantSeverity Severity
		wantBlocking BlockingType
		recoverable  bool
		bypassable   bool
	}{
		{
			name: "test failure is hard blocking",
			err:  errors.New("go test: 3 tests failed"), phase: "pre-push",
			wantCategory: CategoryTestFailure, wantSeverity: SeverityBlocking, wantBlocking: BlockingHard,
		},
		{
			name: "build failure is hard blocking",
			err:  errors.New("build failed: compilation error in main.go"), phase: "pre-push",
			wantCategory: CategoryBuildFailure, wantSeverity: SeverityBlocking, wantBlocking: BlockingHard,
		},
		{
			name: "vulnerability is hard blocking and not bypassable",
			err:  errors.New("1 critical vulnerability found"), phase: "pre-push",
			wantCategory: CategorySecurityVulnerability, wantSeverity: SeverityBlocking, wantBlocking: BlockingHard,
		},
		{
			name: "invalid message is hard blocking but bypassable",
			err:  errors.New("commit message does not match required format"), phase: "commit-msg",
			wantCategory: CategoryInvalidCommitMessage, wantSeverity: SeverityBlocking,
			wantBlocking: BlockingHard, bypassable: true,
		},
		{
			name: "lint error is soft blocking and recoverable",
			err:  errors.New("lint: 4 issues"), phase: "pre-commit",
			wantCategory: CategoryLintError, wantSeverity: SeverityBlocking,
			wantBlocking: BlockingSoft, recoverable: true, bypassable: true,
		},
		{
			name: "stale journal is a warning",
			err:  errors.New("running-context journal not updated"), phase: "pre-commit",
			wantCategory: CategoryMissingContextUpdate, wantSeverity: SeverityWarning,
			recoverable: true, bypassable: true,
		},
		{
			name: "notification failure is non-blocking",
			err:  errors.New("notification endpoint unreachable"), phase: "post-commit",
			wantCategory: CategoryNotificationFailure, wantSeverity: SeverityNonBlocking,
		},
		{
			name: "unknown pre error blocks",
			err:  errors.New("something inexplicable"), phase: "pre-commit",
			wantCategory: CategoryUnknownPreHook, wantSeverity: SeverityBlocking,
			wantBlocking: BlockingSoft, bypassable: true,
		},
		{
			name: "unknown post error does not block",
			err:  errors.New("something inexplicable"), phase: "post-merge",
			wantCategory: CategoryUnknownPostHook, wantSeverity: SeverityNonBlocking,
		},
		{
			name: "timeout blocks before the mutation",
			err:  errors.New("fast test slice timed out"), phase: "pre-commit",
			wantCategory: CategoryTimeout, wantSeverity: SeverityBlocking,
			wantBlocking: BlockingSoft, bypassable: true,
		},
		{
			name: "timeout after the mutation does not block",
			err:  errors.New("docs generation timed out"), phase: "post-commit",
			wantCategory: CategoryTimeout, wantSeverity: SeverityNonBlocking,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := Classify(tt.err, tt.phase)
			assert.Equal(t, tt.wantCategory, cls.Category)
			assert.Equal(t, tt.wantSeverity, cls.Severity)
			assert.Equal(t, tt.wantBlocking, cls.BlockingType)
			assert.Equal(t, tt.recoverable, cls.Recoverable)
			assert.Equal(t, tt.bypassable, cls.Bypassable)
		})
	}
}

func TestClassify_ExplicitCategoryWins(t *testing.T) {
	// The text mentions lint, but the explicit category takes priority.
	err := NewError(CategoryTestFailure, "lint wrapper reported failing tests")
	cls := Classify(err, "pre-push")
	assert.Equal(t, CategoryTestFailure, cls.Category)
}

func TestClassify_Deterministic(t *testing.T) {
	err := errors.New("lint: unused variable")
	first := Classify(err, "pre-commit")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Classify(err, "pre-commit"))
	}
}

func TestClassify_NilError(t *testing.T) {
	assert.Equal(t, Classification{}, Classify(nil, "pre-commit"))
}
