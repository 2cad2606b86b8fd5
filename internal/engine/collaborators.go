package engine

import (
	"context"
	"regexp"
	"strings"
)

// GateVerdict is the policy gate's combined judgement of a pre-* run.
type GateVerdict string

const (
	GatePass   GateVerdict = "PASS"
	GateFail   GateVerdict = "FAIL"
	GateWaived GateVerdict = "WAIVED"
)

// GateResult is what the policy gate returns for one evaluation.
type GateResult struct {
	Gate     GateVerdict `json:"gate"`
	Errors   []string    `json:"errors,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
	Waiver   string      `json:"waiver,omitempty"`
}

// PolicyGate turns accumulated step results into one verdict. The rule
// table behind it is an external concern; the engine only consumes the
// verdict.
type PolicyGate interface {
	Evaluate(ctx context.Context, hook HookType, results map[string]StepResult) (GateResult, error)
}

// ResultGate is the built-in gate: FAIL when any step failed, PASS
// otherwise. It never waives.
type ResultGate struct{}

// Evaluate implements PolicyGate.
func (ResultGate) Evaluate(_ context.Context, _ HookType, results map[string]StepResult) (GateResult, error) {
	res := GateResult{Gate: GatePass}
	for name, step := range results {
		switch step.Status {
		case StatusFailed:
			res.Gate = GateFail
			res.Errors = append(res.Errors, name+": "+step.Error)
		case StatusWarning:
			res.Warnings = append(res.Warnings, name+": "+step.Error)
		}
	}
	return res, nil
}

// ValidationResult is the message validator's verdict.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Format string   `json:"format,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// MessageValidator checks a commit message against the team grammar.
// The grammar itself lives outside the engine.
type MessageValidator interface {
	Validate(ctx context.Context, message string) (ValidationResult, error)
}

// conventionalPattern is the fallback grammar: type(scope)?: subject.
var conventionalPattern = regexp.MustCompile(
	`^(feat|fix|docs|style|refactor|perf|test|build|ci|chore|revert)(\([\w./-]+\))?!?: .+`)

// ConventionalValidator is the built-in validator accepting
// conventional-commit shaped messages. Merge and revert commits
// generated by git itself always pass.
type ConventionalValidator struct{}

// Validate implements MessageValidator.
func (ConventionalValidator) Validate(_ context.Context, message string) (ValidationResult, error) {
	subject := message
	if i := strings.IndexByte(subject, '\n'); i >= 0 {
		subject = subject[:i]
	}
	subject = strings.TrimSpace(subject)

	if subject == "" {
		return ValidationResult{Errors: []string{"empty commit message"}}, nil
	}
	if strings.HasPrefix(subject, "Merge ") || strings.HasPrefix(subject, "Revert ") {
		return ValidationResult{Valid: true, Format: "git-generated"}, nil
	}
	if !conventionalPattern.MatchString(subject) {
		return ValidationResult{
			Format: "conventional",
			Errors: []string{"subject does not match type(scope): description"},
		}, nil
	}
	if len(subject) > 100 {
		return ValidationResult{
			Format: "conventional",
			Errors: []string{"subject longer than 100 characters"},
		}, nil
	}
	return ValidationResult{Valid: true, Format: "conventional"}, nil
}

// Notifier delivers best-effort events to the external workflow
// orchestrator. Post-* steps call it fire-and-forget; a failed delivery
// is recorded per-step and never fails the hook.
type Notifier interface {
	Notify(ctx context.Context, event string, payload map[string]any) error
}

// NopNotifier discards every notification.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, string, map[string]any) error { return nil }

// ScanSummary counts vulnerability findings by severity.
type ScanSummary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Blocking reports whether the scan must fail the push.
func (s ScanSummary) Blocking() bool { return s.Critical > 0 || s.High > 0 }

// VulnScanner runs the dependency vulnerability scan.
type VulnScanner interface {
	Scan(ctx context.Context) (ScanSummary, error)
}
