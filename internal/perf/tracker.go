package perf

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// ExecutionHistoryCap bounds retained execution records.
	ExecutionHistoryCap = 100

	// RecommendationCap bounds retained optimization recommendations.
	RecommendationCap = 50

	// bypassWindow is how many recent executions feed the
	// development-mode bypass decision.
	bypassWindow = 5

	// bypassMinSamples is the minimum executions needed to decide.
	bypassMinSamples = 3

	// bypassSlowRatio is the fraction of slow executions above which
	// bypass is recommended.
	bypassSlowRatio = 0.6
)

var (
	// ErrUnknownExecution is returned when ending an id never started.
	ErrUnknownExecution = errors.New("unknown execution id")

	// ErrAlreadyClosed is returned when an execution is ended twice.
	ErrAlreadyClosed = errors.New("execution already closed")
)

// Execution is one tracked pipeline run.
type Execution struct {
	ID                      string        `json:"id"`
	EventType               string        `json:"event_type"`
	StartTime               time.Time     `json:"start_time"`
	EndTime                 time.Time     `json:"end_time"`
	Duration                time.Duration `json:"duration"`
	Success                 bool          `json:"success"`
	Context                 string        `json:"context,omitempty"`
	PerformanceThresholdMet bool          `json:"performance_threshold_met"`
	Optimizable             bool          `json:"optimizable"`
}

// Recommendation suggests how to speed up a slow event type.
type Recommendation struct {
	EventType        string        `json:"event_type"`
	ObservedDuration time.Duration `json:"observed_duration"`
	Recommendations  []string      `json:"recommendations"`
}

// EndResult is the outcome of closing an execution.
type EndResult struct {
	Duration                time.Duration `json:"duration"`
	Optimizable             bool          `json:"optimizable"`
	PerformanceThresholdMet bool          `json:"performance_threshold_met"`
}

// EventStats aggregates one event type.
type EventStats struct {
	Count           int           `json:"count"`
	SuccessRate     float64       `json:"success_rate"`
	AverageDuration time.Duration `json:"average_duration"`
}

// Aggregate is the full metrics report over retained history.
type Aggregate struct {
	TotalExecutions  int                   `json:"total_executions"`
	SuccessRate      float64               `json:"success_rate"`
	AverageDuration  time.Duration         `json:"average_duration"`
	ThresholdMetRate float64               `json:"threshold_met_rate"`
	ByEvent          map[string]EventStats `json:"by_event"`
}

// Config tunes the tracker.
type Config struct {
	// PerformanceThreshold flags executions slower than this.
	PerformanceThreshold time.Duration

	// OptimizationThreshold triggers recommendations when exceeded.
	OptimizationThreshold time.Duration

	// DevelopmentMode enables the bypass recommendation.
	DevelopmentMode bool
}

// Tracker owns execution records and derived statistics.
type Tracker struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	open    map[string]*Execution
	history *ring[Execution]
	recs    *ring[Recommendation]
}

// NewTracker creates a tracker with bounded history.
func NewTracker(cfg Config, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		open:    make(map[string]*Execution),
		history: newRing[Execution](ExecutionHistoryCap),
		recs:    newRing[Recommendation](RecommendationCap),
	}
}

// Start opens an execution record and returns its id.
func (t *Tracker) Start(eventType, execContext string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := uuid.NewString()
	t.open[id] = &Execution{
		ID:        id,
		EventType: eventType,
		Context:   execContext,
		StartTime: t.now(),
	}
	return id
}

// End closes the execution record exactly once. Ending an unknown or
// already-closed id returns a zero result and a sentinel error; it
// never panics.
func (t *Tracker) End(id string, success bool) (EndResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	exec, ok := t.open[id]
	if !ok {
		for _, past := range t.history.Items() {
			if past.ID == id {
				return EndResult{}, fmt.Errorf("execution %s: %w", id, ErrAlreadyClosed)
			}
		}
		return EndResult{}, fmt.Errorf("execution %s: %w", id, ErrUnknownExecution)
	}
	delete(t.open, id)

	exec.EndTime = t.now()
	exec.Duration = exec.EndTime.Sub(exec.StartTime)
	if exec.Duration < 0 {
		// Clock skew tolerance.
		exec.Duration = 0
	}
	exec.Success = success
	exec.PerformanceThresholdMet = exec.Duration <= t.cfg.PerformanceThreshold
	exec.Optimizable = t.cfg.OptimizationThreshold > 0 && exec.Duration > t.cfg.OptimizationThreshold

	t.history.Append(*exec)

	if exec.Optimizable {
		rec := Recommendation{
			EventType:        exec.EventType,
			ObservedDuration: exec.Duration,
			Recommendations:  adviceFor(exec.EventType),
		}
		t.recs.Append(rec)
		t.logger.Debug("execution exceeded optimization threshold",
			zap.String("event_type", exec.EventType),
			zap.Duration("duration", exec.Duration))
	}

	return EndResult{
		Duration:                exec.Duration,
		Optimizable:             exec.Optimizable,
		PerformanceThresholdMet: exec.PerformanceThresholdMet,
	}, nil
}

// History returns retained executions, oldest first.
func (t *Tracker) History() []Execution {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.Items()
}

// Recommendations returns retained recommendations, oldest first.
func (t *Tracker) Recommendations() []Recommendation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recs.Items()
}

// Stats computes the aggregate report from retained history only.
func (t *Tracker) Stats() Aggregate {
	t.mu.Lock()
	defer t.mu.Unlock()

	items := t.history.Items()
	agg := Aggregate{
		TotalExecutions: len(items),
		ByEvent:         make(map[string]EventStats),
	}
	if len(items) == 0 {
		return agg
	}

	type bucket struct {
		count     int
		successes int
		total     time.Duration
	}
	buckets := make(map[string]*bucket)

	var successes, thresholdMet int
	var total time.Duration
	for _, e := range items {
		if e.Success {
			successes++
		}
		if e.PerformanceThresholdMet {
			thresholdMet++
		}
		total += e.Duration

		b := buckets[e.EventType]
		if b == nil {
			b = &bucket{}
			buckets[e.EventType] = b
		}
		b.count++
		if e.Success {
			b.successes++
		}
		b.total += e.Duration
	}

	n := len(items)
	agg.SuccessRate = float64(successes) / float64(n)
	agg.ThresholdMetRate = float64(thresholdMet) / float64(n)
	agg.AverageDuration = total / time.Duration(n)
	for event, b := range buckets {
		agg.ByEvent[event] = EventStats{
			Count:           b.count,
			SuccessRate:     float64(b.successes) / float64(b.count),
			AverageDuration: b.total / time.Duration(b.count),
		}
	}
	return agg
}

// ShouldBypassInDevelopment reports whether recent hook runs are slow
// enough that development mode should skip the heavy steps. It requires
// development mode, at least 3 of the most recent (up to 5) executions,
// and more than 60% of them over the performance threshold.
func (t *Tracker) ShouldBypassInDevelopment() bool {
	if !t.cfg.DevelopmentMode {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	recent := t.history.Tail(bypassWindow)
	if len(recent) < bypassMinSamples {
		return false
	}
	slow := 0
	for _, e := range recent {
		if !e.PerformanceThresholdMet {
			slow++
		}
	}
	return float64(slow)/float64(len(recent)) > bypassSlowRatio
}

// SnapshotJSON renders the persisted metrics document: the aggregate
// plus retained recommendations.
func (t *Tracker) SnapshotJSON() (string, error) {
	doc := struct {
		GeneratedAt     time.Time        `json:"generated_at"`
		Aggregate       Aggregate        `json:"aggregate"`
		Recommendations []Recommendation `json:"recommendations"`
	}{
		GeneratedAt:     t.now().UTC(),
		Aggregate:       t.Stats(),
		Recommendations: t.Recommendations(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metrics snapshot: %w", err)
	}
	return string(data), nil
}

// trackerState is the raw persisted history. The engine runs one
// process per hook event, so the rings survive between invocations
// only through this document.
type trackerState struct {
	Executions      []Execution      `json:"executions"`
	Recommendations []Recommendation `json:"recommendations"`
}

// StateJSON serializes the retained history and recommendations for
// the next hook process.
func (t *Tracker) StateJSON() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := trackerState{
		Executions:      t.history.Items(),
		Recommendations: t.recs.Items(),
	}
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("marshal execution history: %w", err)
	}
	return string(data), nil
}

// RestoreState replays a persisted history document into the rings.
// Meant for a freshly constructed tracker; restored records precede
// anything recorded afterwards and capacity eviction applies as usual.
func (t *Tracker) RestoreState(doc string) error {
	var state trackerState
	if err := json.Unmarshal([]byte(doc), &state); err != nil {
		return fmt.Errorf("decode execution history: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range state.Executions {
		t.history.Append(e)
	}
	for _, r := range state.Recommendations {
		t.recs.Append(r)
	}
	return nil
}

// adviceFor maps an event type to concrete speed-up suggestions.
func adviceFor(eventType string) []string {
	switch eventType {
	case "pre-commit":
		return []string{
			"narrow lint paths to staged packages",
			"use the short test slice via -short",
			"enable the development-mode bypass for iteration-heavy work",
		}
	case "pre-push":
		return []string{
			"enable build and test caching",
			"split the vulnerability scan into a scheduled job",
		}
	default:
		return []string{"profile the slowest step and tighten its timeout budget"}
	}
}
