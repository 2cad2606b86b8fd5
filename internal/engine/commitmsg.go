package engine

import (
	"context"
	"strings"

	"github.com/fyrsmithlabs/hookd/internal/recovery"
)

// bypassPrefixes are message prefixes that skip validation while
// development mode is on.
var bypassPrefixes = []string{"WIP:", "wip:", "TEMP:", "temp:"}

// emergencyPrefix skips validation regardless of mode. Its use is
// always audited.
const emergencyPrefix = "EMERGENCY:"

// bypassEnvVar skips validation when set in the hook environment.
const bypassEnvVar = "HOOKD_BYPASS_HOOKS"

// runCommitMsg checks the escape hatches first; a granted bypass skips
// grammar validation entirely and forces the run to succeed.
func (o *Orchestrator) runCommitMsg(ctx context.Context, args Args, res *Result) {
	bypass := o.exec(ctx, CommitMsg, res, "bypass", func(context.Context) StepResult {
		return o.bypassStep(args.Message)
	})
	if granted, _ := bypass.Fields["bypassed"].(bool); granted {
		return
	}

	o.exec(ctx, CommitMsg, res, "messageValidation", func(ctx context.Context) StepResult {
		return o.messageValidationStep(ctx, args.Message)
	})
}

// bypassStep evaluates the escape hatches in a fixed order: emergency
// prefix, environment variable, development-mode prefixes, and the
// tracker's slow-run recommendation. Every grant writes an audit entry.
func (o *Orchestrator) bypassStep(message string) StepResult {
	method, reason := o.matchBypass(message)
	if method == "" {
		return passed().With("bypassed", false)
	}

	rec := o.recordBypass(CommitMsg, method, reason)
	return passed().
		With("bypassed", true).
		With("bypassMethod", string(method)).
		With("auditTrail", map[string]any{
			"bypassType": string(method),
			"timestamp":  rec.Timestamp,
			"details":    reason,
		})
}

func (o *Orchestrator) matchBypass(message string) (recovery.Method, string) {
	if strings.HasPrefix(message, emergencyPrefix) {
		return recovery.MethodEmergency, "emergency prefix on commit message"
	}
	if o.getenv(bypassEnvVar) != "" {
		return recovery.MethodEnvironment, bypassEnvVar + " set in hook environment"
	}
	if o.cfg.Hooks.DevelopmentMode {
		for _, prefix := range bypassPrefixes {
			if strings.HasPrefix(message, prefix) {
				return recovery.MethodPrefix, "development-mode prefix " + prefix
			}
		}
		if o.tracker.ShouldBypassInDevelopment() {
			return recovery.MethodDevelopmentMode, "recent hook runs exceeded the performance threshold"
		}
	}
	return "", ""
}

// messageValidationStep delegates to the external grammar validator.
func (o *Orchestrator) messageValidationStep(ctx context.Context, message string) StepResult {
	vr, err := o.validator.Validate(ctx, message)
	if err != nil {
		return o.stepFailure(ctx, CommitMsg, err)
	}
	if !vr.Valid {
		return o.stepFailure(ctx, CommitMsg,
			recovery.NewError(recovery.CategoryInvalidCommitMessage,
				"commit message rejected: %s", strings.Join(vr.Errors, "; "))).
			With("format", vr.Format)
	}
	return passed().With("format", vr.Format)
}
