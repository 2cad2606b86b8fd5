package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hookd/internal/breaker"
	"github.com/fyrsmithlabs/hookd/internal/config"
	"github.com/fyrsmithlabs/hookd/internal/execx"
	"github.com/fyrsmithlabs/hookd/internal/journal"
	"github.com/fyrsmithlabs/hookd/internal/perf"
	"github.com/fyrsmithlabs/hookd/internal/recovery"
	"github.com/fyrsmithlabs/hookd/internal/statestore"
)

// TrackerStateKey is the state-store key holding the raw execution
// history shared across hook processes.
const TrackerStateKey = "metrics/history.json"

// JournalService is the slice of the journal the pipelines use.
type JournalService interface {
	RestoreOrInit(ctx context.Context, branch string) (bool, error)
	Append(ctx context.Context, entry journal.Entry) error
	Load() (*journal.Document, error)
	Path() string
}

// Options wires an Orchestrator. Config, Repo, Tracker, and Recovery
// are required; collaborators left nil get working defaults.
type Options struct {
	Config    *config.Config
	Repo      Repo
	Runner    execx.Runner
	Tracker   *perf.Tracker
	Recovery  *recovery.Handler
	Audit     *recovery.AuditLog
	Journal   JournalService
	Store     statestore.Store
	Locker    *breaker.Locker
	Breaker   *breaker.Breaker
	Gate      PolicyGate
	Validator MessageValidator
	Notifier  Notifier
	Scanner   VulnScanner
	Logger    *zap.Logger
}

// Orchestrator runs the per-event pipelines. One instance serves one
// hook process; all cross-process state lives behind the store, the
// breaker document, and the lock directory.
type Orchestrator struct {
	cfg       *config.Config
	repo      Repo
	runner    execx.Runner
	tracker   *perf.Tracker
	recovery  *recovery.Handler
	audit     *recovery.AuditLog
	journal   JournalService
	store     statestore.Store
	locker    *breaker.Locker
	breaker   *breaker.Breaker
	gate      PolicyGate
	validator MessageValidator
	notifier  Notifier
	scanner   VulnScanner
	logger    *zap.Logger
	now       func() time.Time
	getenv    func(string) string
}

// New creates an orchestrator from opts.
func New(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, errors.New("engine: nil config")
	}
	if opts.Repo == nil {
		return nil, errors.New("engine: nil repository")
	}
	if opts.Tracker == nil {
		return nil, errors.New("engine: nil performance tracker")
	}
	if opts.Recovery == nil {
		return nil, errors.New("engine: nil recovery handler")
	}
	if opts.Runner == nil {
		opts.Runner = execx.NewOSRunner()
	}
	if opts.Store == nil {
		opts.Store = statestore.NewMemStore()
	}
	if opts.Gate == nil {
		opts.Gate = ResultGate{}
	}
	if opts.Validator == nil {
		opts.Validator = ConventionalValidator{}
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Scanner == nil {
		opts.Scanner = &CommandScanner{
			Argv:    opts.Config.Tools.Scan,
			Timeout: opts.Config.Timeouts.Scan,
			Runner:  opts.Runner,
		}
	}
	return &Orchestrator{
		cfg:       opts.Config,
		repo:      opts.Repo,
		runner:    opts.Runner,
		tracker:   opts.Tracker,
		recovery:  opts.Recovery,
		audit:     opts.Audit,
		journal:   opts.Journal,
		store:     opts.Store,
		locker:    opts.Locker,
		breaker:   opts.Breaker,
		gate:      opts.Gate,
		validator: opts.Validator,
		notifier:  opts.Notifier,
		scanner:   opts.Scanner,
		logger:    opts.Logger,
		now:       time.Now,
		getenv:    func(string) string { return "" },
	}, nil
}

// SetEnvLookup installs the environment lookup used by the bypass and
// emergency escape hatches.
func (o *Orchestrator) SetEnvLookup(fn func(string) string) {
	if fn != nil {
		o.getenv = fn
	}
}

// Run executes the pipeline for one lifecycle event and returns its
// aggregated result. Run never returns an error: every failure mode is
// folded into the result so the calling hook script can decide its
// exit code from Success alone.
func (o *Orchestrator) Run(ctx context.Context, hook HookType, args Args) *Result {
	res := &Result{HookType: hook, Results: make(map[string]StepResult)}
	if !hook.Valid() {
		res.Error = fmt.Sprintf("unsupported hook type %q", hook)
		return res
	}

	branch, err := o.repo.CurrentBranch()
	if err != nil {
		o.logger.Warn("branch detection failed", zap.Error(err))
	}
	res.Branch = branch
	res.Remote = args.Remote

	id := o.tracker.Start(string(hook), branch)
	log := o.logger.With(zap.String("hook", string(hook)), zap.String("branch", branch))
	log.Debug("pipeline started")

	switch hook {
	case PreCommit:
		o.runPreCommit(ctx, args, res)
	case CommitMsg:
		o.runCommitMsg(ctx, args, res)
	case PrePush:
		o.runPrePush(ctx, args, res)
	case PostCommit:
		o.runPostCommit(ctx, args, res)
	case PostMerge:
		o.runPostMerge(ctx, args, res)
	case PreRebase:
		o.runPreRebase(ctx, args, res)
	case PostCheckout:
		o.runPostCheckout(ctx, args, res)
	case PreReceive:
		o.runPreReceive(ctx, args, res)
	}

	o.settleVerdict(ctx, hook, res)

	end, endErr := o.tracker.End(id, res.Success)
	if endErr != nil {
		log.Warn("closing execution record failed", zap.Error(endErr))
	}
	res.Duration = end.Duration

	o.updateBreaker(hook, res.Success, log)
	o.persistTrackerState(ctx, log)

	log.Info("pipeline finished",
		zap.Bool("success", res.Success),
		zap.Duration("duration", res.Duration),
		zap.Int("steps", len(res.Results)))
	return res
}

// settleVerdict turns step results into the overall success flag. Post
// events unconditionally succeed: they run after the mutation, so
// forward progress wins over strict gating. Pre events fail on any
// failed step, then the policy gate gets the last word where the
// pipeline includes one.
func (o *Orchestrator) settleVerdict(ctx context.Context, hook HookType, res *Result) {
	if hook.IsPost() {
		res.Success = true
		return
	}

	res.Success = true
	for _, step := range res.Results {
		if step.Status == StatusFailed {
			res.Success = false
			break
		}
	}

	if bypass, ok := res.Results["bypass"]; ok {
		if b, _ := bypass.Fields["bypassed"].(bool); b {
			res.Success = true
		}
	}

	if (hook == PreCommit || hook == PrePush) && o.cfg.Hooks.EnableGatekeeper {
		verdict, err := o.gate.Evaluate(ctx, hook, res.Results)
		if err != nil {
			o.logger.Warn("policy gate evaluation failed", zap.Error(err))
			return
		}
		res.Gate = verdict.Gate
		switch verdict.Gate {
		case GateFail:
			res.Success = false
		case GateWaived:
			res.Success = true
		}
	}
}

// updateBreaker feeds pre-event verdicts into the persisted failure
// counter. Post events never count: they cannot fail.
func (o *Orchestrator) updateBreaker(hook HookType, success bool, log *zap.Logger) {
	if o.breaker == nil || hook.IsPost() {
		return
	}
	var err error
	if success {
		err = o.breaker.Reset()
	} else {
		err = o.breaker.RecordFailure()
	}
	if err != nil {
		log.Warn("circuit breaker update failed", zap.Error(err))
	}
}

// exec runs one named step with a panic boundary, stores the result,
// and returns it. A step is never allowed to throw past this point.
func (o *Orchestrator) exec(ctx context.Context, hook HookType, res *Result, name string, fn func(context.Context) StepResult) StepResult {
	step := o.runStep(ctx, hook, name, fn)
	res.Results[name] = step
	return step
}

func (o *Orchestrator) runStep(ctx context.Context, hook HookType, name string, fn func(context.Context) StepResult) (out StepResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("step panicked",
				zap.String("hook", string(hook)),
				zap.String("step", name),
				zap.Any("panic", r))
			out = o.stepFailure(ctx, hook, fmt.Errorf("step %s panicked: %v", name, r))
		}
	}()
	return fn(ctx)
}

// stepFailure converts a raised error into a step result: classify,
// try recovery for recoverable categories, and map the remaining
// severity onto a status.
func (o *Orchestrator) stepFailure(ctx context.Context, hook HookType, err error) StepResult {
	cls := recovery.Classify(err, string(hook))

	if cls.Recoverable {
		branch, _ := o.repo.CurrentBranch()
		rec := o.recovery.AttemptRecovery(ctx, err, string(hook)+":"+branch)
		if rec.Successful {
			return warning(err.Error()).
				With("recovered", true).
				With("recoveryAction", rec.Action)
		}
	}

	switch cls.Severity {
	case recovery.SeverityBlocking:
		return failed(err.Error()).With("category", string(cls.Category))
	case recovery.SeverityWarning:
		return warning(err.Error()).With("category", string(cls.Category))
	default:
		if hook.IsPost() {
			return failed(err.Error()).With("category", string(cls.Category))
		}
		return warning(err.Error()).With("category", string(cls.Category))
	}
}

// withLock wraps fn in the named lock when a locker is configured. A
// lock timeout surfaces as a recoverable error, never a crash.
func (o *Orchestrator) withLock(ctx context.Context, name string, fn func() error) error {
	if o.locker == nil {
		return fn()
	}
	return o.locker.WithLock(ctx, name, fn)
}

// persistTrackerState saves the bounded execution history so the next
// hook process resumes from it instead of an empty tracker.
func (o *Orchestrator) persistTrackerState(ctx context.Context, log *zap.Logger) {
	doc, err := o.tracker.StateJSON()
	if err == nil {
		err = o.persistReport(ctx, TrackerStateKey, doc)
	}
	if err != nil {
		log.Warn("persisting execution history failed", zap.Error(err))
	}
}

// persistReport stores a structured document under the state store,
// serialized through the shared lock.
func (o *Orchestrator) persistReport(ctx context.Context, key, content string) error {
	if o.store == nil {
		return nil
	}
	return o.withLock(ctx, "state", func() error {
		return o.store.Write(ctx, key, content)
	})
}
