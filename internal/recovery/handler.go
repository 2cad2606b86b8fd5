package recovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hookd/internal/breaker"
	"github.com/fyrsmithlabs/hookd/internal/execx"
)

// JournalAppender is the slice of the journal service recovery needs
// for the auto-generate-context action.
type JournalAppender interface {
	AppendSynthesized(ctx context.Context, summary string) error
}

// Options configures a Handler.
type Options struct {
	// MaxAttempts caps recovery attempts per (category, context) key.
	MaxAttempts int

	// EnableAutoRecovery gates all recovery actions.
	EnableAutoRecovery bool

	// CacheDir is the tool cache recreated by cache-rebuild.
	CacheDir string

	// FormatTool is the argv used by auto-fix.
	FormatTool []string

	// Runner executes recovery subprocesses.
	Runner execx.Runner

	// Journal receives synthesized entries from auto-generate-context.
	// Nil disables that action.
	Journal JournalAppender

	// Breaker, when open, suppresses all recovery.
	Breaker *breaker.Breaker

	Logger *zap.Logger
}

// Handler performs bounded automatic recovery. Attempt counters are
// process-lifetime state, reset only by restart or ClearAttempts.
type Handler struct {
	opts Options

	mu       sync.Mutex
	attempts map[string]int
}

// NewHandler creates a recovery handler.
func NewHandler(opts Options) *Handler {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{
		opts:     opts,
		attempts: make(map[string]int),
	}
}

// AttemptRecovery tries to recover from err within the recoveryContext
// scope (typically the hook type plus branch). It never returns an
// error: failure to recover is a result, not an exception.
func (h *Handler) AttemptRecovery(ctx context.Context, err error, recoveryContext string) RecoveryResult {
	cls := Classify(err, "")
	res := RecoveryResult{Category: cls.Category, Context: recoveryContext}

	if !h.opts.EnableAutoRecovery {
		res.Reason = "Auto recovery disabled"
		return res
	}
	if h.opts.Breaker != nil && h.opts.Breaker.IsOpen() {
		res.Reason = "Circuit breaker open"
		return res
	}
	if !cls.Recoverable {
		res.Reason = "Error not recoverable"
		return res
	}

	key := string(cls.Category) + "|" + recoveryContext
	h.mu.Lock()
	if h.attempts[key] >= h.opts.MaxAttempts {
		attempts := h.attempts[key]
		h.mu.Unlock()
		res.Reason = "Max recovery attempts exceeded"
		res.Attempts = attempts
		return res
	}
	h.attempts[key]++
	res.AttemptNumber = h.attempts[key]
	h.mu.Unlock()

	h.recover(ctx, cls.Category, err, &res)

	h.opts.Logger.Info("recovery attempt finished",
		zap.String("category", string(cls.Category)),
		zap.String("context", recoveryContext),
		zap.Int("attempt", res.AttemptNumber),
		zap.Bool("successful", res.Successful),
		zap.String("action", res.Action))
	return res
}

// ClearAttempts resets the per-key attempt counters.
func (h *Handler) ClearAttempts() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts = make(map[string]int)
}

// recover dispatches the category-specific action into res.
func (h *Handler) recover(ctx context.Context, cat Category, err error, res *RecoveryResult) {
	switch cat {
	case CategoryLintError:
		res.Action = "auto-fix"
		h.autoFix(ctx, res)
	case CategoryMissingContextUpdate:
		res.Action = "auto-generate-context"
		h.autoGenerateContext(ctx, res)
	case CategoryPerformanceThreshold:
		res.Action = "enable-optimizations"
		res.Successful = true
		res.Details = "enabled cached short test slice for subsequent runs"
	case CategoryCoverageShortfall:
		res.Action = "coverage-guidance"
		h.coverageGuidance(err, res)
	case CategoryCacheCorruption:
		res.Action = "cache-rebuild"
		h.rebuildCache(res)
	default:
		res.Reason = fmt.Sprintf("no recovery action for category %s", cat)
	}
}

// autoFix re-runs the formatter so style findings fix themselves.
func (h *Handler) autoFix(ctx context.Context, res *RecoveryResult) {
	if h.opts.Runner == nil || len(h.opts.FormatTool) == 0 {
		res.Reason = "no format tool configured"
		return
	}
	cmd := execx.Command{
		Program: h.opts.FormatTool[0],
		Args:    append(append([]string{}, h.opts.FormatTool[1:]...), "."),
	}
	out, err := h.opts.Runner.Run(ctx, cmd)
	if err != nil {
		res.Reason = err.Error()
		return
	}
	if !out.Ok() {
		res.Reason = strings.TrimSpace(out.Stderr)
		if res.Reason == "" {
			res.Reason = fmt.Sprintf("formatter exited %d", out.ExitCode)
		}
		return
	}
	res.Successful = true
	res.Details = "re-ran formatter on the working tree"
}

// autoGenerateContext appends a synthesized journal entry.
func (h *Handler) autoGenerateContext(ctx context.Context, res *RecoveryResult) {
	if h.opts.Journal == nil {
		res.Reason = "journal not configured"
		return
	}
	if err := h.opts.Journal.AppendSynthesized(ctx, "auto-generated entry for uncommitted source changes"); err != nil {
		res.Reason = err.Error()
		return
	}
	res.Successful = true
	res.Details = "appended synthesized running-context entry"
}

// coverageGuidance reports per-metric gaps against the threshold.
func (h *Handler) coverageGuidance(err error, res *RecoveryResult) {
	var cov *CoverageError
	if !errors.As(err, &cov) || len(cov.Gaps) == 0 {
		res.Successful = true
		res.Details = "raise coverage to the configured threshold before pushing"
		return
	}

	metrics := make([]string, 0, len(cov.Gaps))
	for m := range cov.Gaps {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	var b strings.Builder
	for _, m := range metrics {
		fmt.Fprintf(&b, "%s: %.1f%% (need %.1f%%, gap %.1f%%); ",
			m, cov.Gaps[m], cov.Threshold, cov.Threshold-cov.Gaps[m])
	}
	res.Successful = true
	res.Details = strings.TrimSuffix(b.String(), "; ")
}

// rebuildCache deletes and recreates the tool cache directory.
func (h *Handler) rebuildCache(res *RecoveryResult) {
	if h.opts.CacheDir == "" {
		res.Reason = "no cache directory configured"
		return
	}
	if err := os.RemoveAll(h.opts.CacheDir); err != nil {
		res.Reason = fmt.Sprintf("remove cache: %v", err)
		return
	}
	if err := os.MkdirAll(h.opts.CacheDir, 0o700); err != nil {
		res.Reason = fmt.Sprintf("recreate cache: %v", err)
		return
	}
	res.Successful = true
	res.Details = "cache directory rebuilt"
}
