package engine

import (
	"encoding/json"
	"time"
)

// HookType names a git lifecycle event handled by the engine.
type HookType string

const (
	PreCommit    HookType = "pre-commit"
	CommitMsg    HookType = "commit-msg"
	PrePush      HookType = "pre-push"
	PostCommit   HookType = "post-commit"
	PostMerge    HookType = "post-merge"
	PreRebase    HookType = "pre-rebase"
	PostCheckout HookType = "post-checkout"
	PreReceive   HookType = "pre-receive"
)

// HookTypes lists every supported lifecycle event.
func HookTypes() []HookType {
	return []HookType{
		PreCommit, CommitMsg, PrePush, PostCommit,
		PostMerge, PreRebase, PostCheckout, PreReceive,
	}
}

// Valid reports whether h names a supported event.
func (h HookType) Valid() bool {
	for _, t := range HookTypes() {
		if h == t {
			return true
		}
	}
	return false
}

// IsPost reports whether h runs after the repository mutation. Post
// events never fail the overall run.
func (h HookType) IsPost() bool {
	switch h {
	case PostCommit, PostMerge, PostCheckout:
		return true
	}
	return false
}

// Status is the outcome of one pipeline step.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusWarning Status = "warning"
	StatusSkipped Status = "skipped"
)

// StepResult is the outcome of one named pipeline step. Fields carries
// step-specific data and is flattened into the JSON object next to the
// status, so callers see {"status": "skipped", "filesProcessed": 0}.
type StepResult struct {
	Status Status
	Error  string
	Fields map[string]any
}

// MarshalJSON flattens Fields alongside status and error.
func (r StepResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["status"] = r.Status
	if r.Error != "" {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

// With returns a copy of r with one extra field set.
func (r StepResult) With(key string, value any) StepResult {
	fields := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		fields[k] = v
	}
	fields[key] = value
	r.Fields = fields
	return r
}

func passed() StepResult  { return StepResult{Status: StatusPassed} }
func skipped() StepResult { return StepResult{Status: StatusSkipped} }

func failed(msg string) StepResult {
	return StepResult{Status: StatusFailed, Error: msg}
}

func warning(msg string) StepResult {
	return StepResult{Status: StatusWarning, Error: msg}
}

// Result is the JSON-serializable outcome of one hook run.
type Result struct {
	HookType HookType              `json:"hookType"`
	Success  bool                  `json:"success"`
	Duration time.Duration         `json:"duration"`
	Results  map[string]StepResult `json:"results"`
	Branch   string                `json:"branch,omitempty"`
	Remote   string                `json:"remote,omitempty"`
	Gate     GateVerdict           `json:"gate,omitempty"`
	Error    string                `json:"error,omitempty"`

	FailureReport *FailureReport `json:"failureReport,omitempty"`
	Remediation   *Remediation   `json:"remediation,omitempty"`

	Rollback         *RollbackAdvice  `json:"rollback,omitempty"`
	Troubleshooting  *Troubleshooting `json:"troubleshooting,omitempty"`
	MultipleFailures bool             `json:"multipleFailures,omitempty"`
	FailureCount     int              `json:"failureCount,omitempty"`
}

// FailureReport summarizes the failed checks of a pre-push run.
type FailureReport struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Failures  []FailureDetail `json:"failures"`
	Summary   FailureSummary  `json:"summary"`
}

// FailureDetail is one failed check inside a FailureReport.
type FailureDetail struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

// FailureSummary counts checks for the report header.
type FailureSummary struct {
	TotalChecks  int `json:"totalChecks"`
	FailedChecks int `json:"failedChecks"`
}

// Remediation pairs human steps with copy-pasteable commands.
type Remediation struct {
	Steps    []string `json:"steps"`
	Commands []string `json:"commands"`
}

// RollbackAdvice recommends how to undo a bad merge. Protected branches
// get revert-based advice; reset rewrites published history.
type RollbackAdvice struct {
	Strategy        string   `json:"strategy"`
	Steps           []string `json:"steps"`
	Commands        []string `json:"commands"`
	ForcePushNeeded bool     `json:"forcePushNeeded,omitempty"`
	Warning         string   `json:"warning,omitempty"`
}

// Troubleshooting explains a post-merge validation failure.
type Troubleshooting struct {
	FailureType     string   `json:"failureType"`
	ErrorMessage    string   `json:"errorMessage"`
	DiagnosticSteps []string `json:"diagnosticSteps"`
}

// Args carries the event-specific inputs git hands to each hook.
type Args struct {
	// Message is the commit message under validation (commit-msg).
	Message string

	// Remote and RemoteURL identify the push target (pre-push).
	Remote    string
	RemoteURL string

	// Upstream is the rebase target (pre-rebase).
	Upstream string

	// BranchCheckout is git's flag distinguishing branch from file
	// checkouts (post-checkout).
	BranchCheckout bool

	// TargetBranch is the branch being checked out (post-checkout).
	TargetBranch string

	// RefUpdates are the ref changes of a push (pre-receive).
	RefUpdates []RefUpdate
}

// RefUpdate is one old/new pair from a pre-receive stdin line.
type RefUpdate struct {
	OldHash string
	NewHash string
	RefName string
}
