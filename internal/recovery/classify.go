package recovery

import (
	"errors"
	"strings"
)

// categorized is implemented by errors that carry their own category.
type categorized interface {
	Category() Category
}

// textPatterns maps lowercase substrings to categories. Order matters:
// the first match wins, so the more specific patterns come first.
var textPatterns = []struct {
	substr string
	cat    Category
}{
	{"vulnerab", CategorySecurityVulnerability},
	{"security", CategorySecurityVulnerability},
	{"commit message", CategoryInvalidCommitMessage},
	{"invalid message", CategoryInvalidCommitMessage},
	{"coverage", CategoryCoverageShortfall},
	{"test fail", CategoryTestFailure},
	{"tests failed", CategoryTestFailure},
	{"build fail", CategoryBuildFailure},
	{"compilation", CategoryBuildFailure},
	{"lint", CategoryLintError},
	{"journal", CategoryMissingContextUpdate},
	{"running-context", CategoryMissingContextUpdate},
	{"context update", CategoryMissingContextUpdate},
	{"performance threshold", CategoryPerformanceThreshold},
	{"timed out", CategoryTimeout},
	{"timeout", CategoryTimeout},
	{"notification", CategoryNotificationFailure},
	{"notify", CategoryNotificationFailure},
	{"documentation", CategoryDocumentationFailure},
	{"docs generation", CategoryDocumentationFailure},
	{"metrics", CategoryMetricsFailure},
	{"cache", CategoryCacheCorruption},
}

// classifications is the deterministic category table.
var classifications = map[Category]Classification{
	CategoryTestFailure: {
		Category: CategoryTestFailure, Severity: SeverityBlocking, BlockingType: BlockingHard,
	},
	CategoryBuildFailure: {
		Category: CategoryBuildFailure, Severity: SeverityBlocking, BlockingType: BlockingHard,
	},
	CategorySecurityVulnerability: {
		Category: CategorySecurityVulnerability, Severity: SeverityBlocking, BlockingType: BlockingHard,
	},
	CategoryInvalidCommitMessage: {
		Category: CategoryInvalidCommitMessage, Severity: SeverityBlocking, BlockingType: BlockingHard,
		Bypassable: true,
	},
	CategoryLintError: {
		Category: CategoryLintError, Severity: SeverityBlocking, BlockingType: BlockingSoft,
		Recoverable: true, Bypassable: true,
	},
	CategoryMissingContextUpdate: {
		Category: CategoryMissingContextUpdate, Severity: SeverityWarning,
		Recoverable: true, Bypassable: true,
	},
	CategoryPerformanceThreshold: {
		Category: CategoryPerformanceThreshold, Severity: SeverityWarning,
		Recoverable: true, Bypassable: true,
	},
	CategoryCoverageShortfall: {
		Category: CategoryCoverageShortfall, Severity: SeverityWarning,
		Recoverable: true, Bypassable: true,
	},
	CategoryCacheCorruption: {
		Category: CategoryCacheCorruption, Severity: SeverityWarning,
		Recoverable: true, Bypassable: true,
	},
	CategoryNotificationFailure: {
		Category: CategoryNotificationFailure, Severity: SeverityNonBlocking,
	},
	CategoryDocumentationFailure: {
		Category: CategoryDocumentationFailure, Severity: SeverityNonBlocking,
	},
	CategoryMetricsFailure: {
		Category: CategoryMetricsFailure, Severity: SeverityNonBlocking,
	},
	CategoryUnknownPreHook: {
		Category: CategoryUnknownPreHook, Severity: SeverityBlocking, BlockingType: BlockingSoft,
		Bypassable: true,
	},
	CategoryUnknownPostHook: {
		Category: CategoryUnknownPostHook, Severity: SeverityNonBlocking,
	},
}

// Classify derives the classification of err for the given hook phase
// ("pre-commit", "post-merge", ...). Unknown errors default by phase:
// pre-* blocks, post-* does not.
func Classify(err error, phase string) Classification {
	if err == nil {
		return Classification{}
	}

	var cat Category
	var ce categorized
	if errors.As(err, &ce) {
		cat = ce.Category()
	} else {
		cat = matchText(err.Error())
	}

	if cat == "" {
		if isPostPhase(phase) {
			cat = CategoryUnknownPostHook
		} else {
			cat = CategoryUnknownPreHook
		}
	}

	cls, ok := classifications[cat]
	if !ok {
		cls = Classification{Category: cat, Severity: SeverityBlocking, BlockingType: BlockingSoft, Bypassable: true}
	}

	if cat == CategoryTimeout {
		// Timeouts block before the mutation but never after it.
		cls = Classification{
			Category: CategoryTimeout, Severity: SeverityBlocking, BlockingType: BlockingSoft,
			Bypassable: true,
		}
		if isPostPhase(phase) {
			cls.Severity = SeverityNonBlocking
			cls.BlockingType = BlockingNone
			cls.Bypassable = false
		}
	}
	return cls
}

func matchText(text string) Category {
	lower := strings.ToLower(text)
	for _, p := range textPatterns {
		if strings.Contains(lower, p.substr) {
			return p.cat
		}
	}
	return ""
}

func isPostPhase(phase string) bool {
	return strings.HasPrefix(phase, "post-")
}
