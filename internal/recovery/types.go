package recovery

import (
	"fmt"
	"time"
)

// Category identifies a class of pipeline error.
type Category string

const (
	// CategoryTestFailure represents failing tests.
	CategoryTestFailure Category = "TEST_FAILURE"
	// CategoryBuildFailure represents a broken build.
	CategoryBuildFailure Category = "BUILD_FAILURE"
	// CategorySecurityVulnerability represents scanner findings.
	CategorySecurityVulnerability Category = "SECURITY_VULNERABILITY"
	// CategoryInvalidCommitMessage represents a rejected message.
	CategoryInvalidCommitMessage Category = "INVALID_COMMIT_MESSAGE"
	// CategoryLintError represents linter findings.
	CategoryLintError Category = "LINT_ERROR"
	// CategoryMissingContextUpdate represents a stale journal.
	CategoryMissingContextUpdate Category = "MISSING_CONTEXT_UPDATE"
	// CategoryPerformanceThreshold represents slow hook runs.
	CategoryPerformanceThreshold Category = "PERFORMANCE_THRESHOLD"
	// CategoryCoverageShortfall represents coverage below threshold.
	CategoryCoverageShortfall Category = "COVERAGE_SHORTFALL"
	// CategoryCacheCorruption represents an unusable tool cache.
	CategoryCacheCorruption Category = "CACHE_CORRUPTION"
	// CategoryTimeout represents an exceeded subprocess budget.
	CategoryTimeout Category = "TIMEOUT"
	// CategoryNotificationFailure represents a failed notifier call.
	CategoryNotificationFailure Category = "NOTIFICATION_FAILURE"
	// CategoryDocumentationFailure represents failed doc generation.
	CategoryDocumentationFailure Category = "DOCUMENTATION_FAILURE"
	// CategoryMetricsFailure represents a failed metrics write.
	CategoryMetricsFailure Category = "METRICS_FAILURE"
	// CategoryUnknownPreHook is the pre-* fallback.
	CategoryUnknownPreHook Category = "UNKNOWN_PRE_HOOK_ERROR"
	// CategoryUnknownPostHook is the post-* fallback.
	CategoryUnknownPostHook Category = "UNKNOWN_POST_HOOK_ERROR"
)

// Severity ranks how an error affects the hook verdict.
type Severity string

const (
	SeverityBlocking    Severity = "blocking"
	SeverityWarning     Severity = "warning"
	SeverityNonBlocking Severity = "non-blocking"
)

// BlockingType distinguishes hard gates from recoverable ones.
type BlockingType string

const (
	BlockingHard BlockingType = "hard"
	BlockingSoft BlockingType = "soft"
	BlockingNone BlockingType = ""
)

// Classification is the derived view of one error occurrence. It is
// never persisted; callers recompute it whenever an error surfaces.
type Classification struct {
	Category     Category     `json:"category"`
	Severity     Severity     `json:"severity"`
	BlockingType BlockingType `json:"blocking_type,omitempty"`
	Recoverable  bool         `json:"recoverable"`
	Bypassable   bool         `json:"bypassable"`
}

// Blocking reports whether this error can flip a pre-* hook to failure.
func (c Classification) Blocking() bool {
	return c.Severity == SeverityBlocking
}

// Error is a pipeline error with an explicit category, skipping text
// matching during classification.
type Error struct {
	Cat Category
	Msg string
}

// NewError creates a categorized pipeline error.
func NewError(cat Category, format string, args ...any) *Error {
	return &Error{Cat: cat, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return e.Msg }

// Category returns the explicit category.
func (e *Error) Category() Category { return e.Cat }

// CoverageError carries per-metric coverage gaps for the
// coverage-guidance recovery action.
type CoverageError struct {
	// Gaps maps metric name to observed percentage.
	Gaps map[string]float64
	// Threshold is the required percentage.
	Threshold float64
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("coverage below %.1f%% threshold", e.Threshold)
}

// Category marks coverage errors for classification.
func (e *CoverageError) Category() Category { return CategoryCoverageShortfall }

// RecoveryResult describes one recovery attempt.
type RecoveryResult struct {
	Category      Category `json:"category"`
	Context       string   `json:"context"`
	AttemptNumber int      `json:"attempt_number,omitempty"`
	Successful    bool     `json:"successful"`
	Action        string   `json:"action,omitempty"`
	Details       string   `json:"details,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	Attempts      int      `json:"attempts,omitempty"`
}

// Method names a bypass mechanism.
type Method string

const (
	MethodPrefix          Method = "prefix"
	MethodEmergency       Method = "emergency"
	MethodEnvironment     Method = "environment"
	MethodDevelopmentMode Method = "development-mode"
)

// AuditTrail is the nested audit payload of a bypass record.
type AuditTrail struct {
	BypassType string    `json:"bypassType"`
	Timestamp  time.Time `json:"timestamp"`
	Actor      string    `json:"actor,omitempty"`
	Details    string    `json:"details,omitempty"`
}

// BypassRecord is one granted bypass. Records are append-only; nothing
// ever deletes them.
type BypassRecord struct {
	Timestamp     time.Time  `json:"timestamp"`
	HookType      string     `json:"hookType"`
	ErrorCategory Category   `json:"errorCategory"`
	Method        Method     `json:"bypassMethod"`
	Reason        string     `json:"reason"`
	AuditTrail    AuditTrail `json:"auditTrail"`
}

// BypassOptions lists the bypass methods available for an error.
type BypassOptions struct {
	Available bool     `json:"available"`
	Methods   []Method `json:"methods,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}
