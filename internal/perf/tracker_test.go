package perf

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		PerformanceThreshold:  100 * time.Millisecond,
		OptimizationThreshold: time.Second,
	}
}

// fakeClock advances by a fixed step per call.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func newTrackerWithClock(cfg Config, step time.Duration) *Tracker {
	t := NewTracker(cfg, nil)
	clock := &fakeClock{now: time.Unix(1700000000, 0), step: step}
	t.now = clock.Now
	return t
}

func TestStartEnd_Roundtrip(t *testing.T) {
	tr := newTrackerWithClock(testConfig(), 10*time.Millisecond)

	id := tr.Start("pre-commit", "feature-branch")
	res, err := tr.End(id, true)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Millisecond, res.Duration)
	assert.True(t, res.PerformanceThresholdMet)
	assert.False(t, res.Optimizable)

	history := tr.History()
	require.Len(t, history, 1)
	assert.Equal(t, "pre-commit", history[0].EventType)
	assert.True(t, history[0].Success)
}

func TestEnd_UnknownID(t *testing.T) {
	tr := NewTracker(testConfig(), nil)
	_, err := tr.End("no-such-id", true)
	assert.ErrorIs(t, err, ErrUnknownExecution)
}

func TestEnd_DoubleCloseIsErrorNotPanic(t *testing.T) {
	tr := NewTracker(testConfig(), nil)
	id := tr.Start("pre-push", "")
	_, err := tr.End(id, true)
	require.NoError(t, err)

	_, err = tr.End(id, true)
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestHistory_BoundedAtCap(t *testing.T) {
	tr := NewTracker(testConfig(), nil)

	for i := 0; i < 150; i++ {
		id := tr.Start("post-commit", fmt.Sprintf("run-%d", i))
		_, err := tr.End(id, true)
		require.NoError(t, err)
	}

	history := tr.History()
	assert.Len(t, history, ExecutionHistoryCap)
	// The retained entries are the most recent 100: runs 50..149.
	assert.Equal(t, "run-50", history[0].Context)
	assert.Equal(t, "run-149", history[len(history)-1].Context)
}

func TestHistory_UnderCap(t *testing.T) {
	tr := NewTracker(testConfig(), nil)
	for i := 0; i < 7; i++ {
		id := tr.Start("commit-msg", "")
		_, _ = tr.End(id, true)
	}
	assert.Len(t, tr.History(), 7)
}

func TestRecommendations_GeneratedAndBounded(t *testing.T) {
	// Every execution takes 2s, over the 1s optimization threshold.
	tr := newTrackerWithClock(testConfig(), 2*time.Second)

	for i := 0; i < 60; i++ {
		id := tr.Start("pre-push", "")
		res, err := tr.End(id, true)
		require.NoError(t, err)
		assert.True(t, res.Optimizable)
	}

	recs := tr.Recommendations()
	assert.Len(t, recs, RecommendationCap)
	assert.Equal(t, "pre-push", recs[0].EventType)
	assert.NotEmpty(t, recs[0].Recommendations)
}

func TestDuration_ClampedToZero(t *testing.T) {
	tr := NewTracker(testConfig(), nil)
	clock := &fakeClock{now: time.Unix(1700000000, 0), step: -time.Second}
	tr.now = clock.Now

	id := tr.Start("pre-commit", "")
	res, err := tr.End(id, true)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), res.Duration)
}

func TestStats_Aggregate(t *testing.T) {
	tr := newTrackerWithClock(testConfig(), 50*time.Millisecond)

	for i := 0; i < 4; i++ {
		id := tr.Start("pre-commit", "")
		_, err := tr.End(id, i%2 == 0)
		require.NoError(t, err)
	}
	id := tr.Start("pre-push", "")
	_, err := tr.End(id, true)
	require.NoError(t, err)

	agg := tr.Stats()
	assert.Equal(t, 5, agg.TotalExecutions)
	assert.InDelta(t, 0.6, agg.SuccessRate, 0.001)
	assert.Equal(t, 1.0, agg.ThresholdMetRate)
	assert.Equal(t, 50*time.Millisecond, agg.AverageDuration)

	require.Contains(t, agg.ByEvent, "pre-commit")
	require.Contains(t, agg.ByEvent, "pre-push")
	assert.Equal(t, 4, agg.ByEvent["pre-commit"].Count)
	assert.InDelta(t, 0.5, agg.ByEvent["pre-commit"].SuccessRate, 0.001)
}

func TestStats_Empty(t *testing.T) {
	tr := NewTracker(testConfig(), nil)
	agg := tr.Stats()
	assert.Equal(t, 0, agg.TotalExecutions)
	assert.Empty(t, agg.ByEvent)
}

func TestShouldBypassInDevelopment(t *testing.T) {
	t.Run("disabled without development mode", func(t *testing.T) {
		cfg := testConfig()
		tr := newTrackerWithClock(cfg, time.Second) // every run slow
		for i := 0; i < 5; i++ {
			id := tr.Start("pre-commit", "")
			_, _ = tr.End(id, true)
		}
		assert.False(t, tr.ShouldBypassInDevelopment())
	})

	t.Run("too few samples", func(t *testing.T) {
		cfg := testConfig()
		cfg.DevelopmentMode = true
		tr := newTrackerWithClock(cfg, time.Second)
		for i := 0; i < 2; i++ {
			id := tr.Start("pre-commit", "")
			_, _ = tr.End(id, true)
		}
		assert.False(t, tr.ShouldBypassInDevelopment())
	})

	t.Run("recommends when most recent runs are slow", func(t *testing.T) {
		cfg := testConfig()
		cfg.DevelopmentMode = true
		tr := newTrackerWithClock(cfg, time.Second)
		for i := 0; i < 5; i++ {
			id := tr.Start("pre-commit", "")
			_, _ = tr.End(id, true)
		}
		assert.True(t, tr.ShouldBypassInDevelopment())
	})

	t.Run("stays quiet when runs are fast", func(t *testing.T) {
		cfg := testConfig()
		cfg.DevelopmentMode = true
		tr := newTrackerWithClock(cfg, 10*time.Millisecond)
		for i := 0; i < 5; i++ {
			id := tr.Start("pre-commit", "")
			_, _ = tr.End(id, true)
		}
		assert.False(t, tr.ShouldBypassInDevelopment())
	})
}

func TestSnapshotJSON(t *testing.T) {
	tr := newTrackerWithClock(testConfig(), 10*time.Millisecond)
	id := tr.Start("post-commit", "")
	_, err := tr.End(id, true)
	require.NoError(t, err)

	doc, err := tr.SnapshotJSON()
	require.NoError(t, err)
	assert.Contains(t, doc, `"total_executions": 1`)
	assert.Contains(t, doc, `"post-commit"`)
}

func TestStateJSON_RoundtripAcrossTrackers(t *testing.T) {
	cfg := testConfig()
	cfg.DevelopmentMode = true
	tr := newTrackerWithClock(cfg, time.Second) // every run slow

	for i := 0; i < 4; i++ {
		id := tr.Start("pre-commit", "feature")
		_, err := tr.End(id, true)
		require.NoError(t, err)
	}
	require.True(t, tr.ShouldBypassInDevelopment())

	doc, err := tr.StateJSON()
	require.NoError(t, err)

	// A fresh tracker, as each hook process constructs, must carry the
	// restored history before recording anything of its own.
	next := NewTracker(cfg, nil)
	require.False(t, next.ShouldBypassInDevelopment())
	require.NoError(t, next.RestoreState(doc))

	assert.Len(t, next.History(), 4)
	assert.True(t, next.ShouldBypassInDevelopment())
	assert.Equal(t, 4, next.Stats().TotalExecutions)
}

func TestRestoreState_KeepsRecommendations(t *testing.T) {
	tr := newTrackerWithClock(testConfig(), 2*time.Second)
	id := tr.Start("pre-push", "")
	_, err := tr.End(id, true)
	require.NoError(t, err)
	require.Len(t, tr.Recommendations(), 1)

	doc, err := tr.StateJSON()
	require.NoError(t, err)

	next := NewTracker(testConfig(), nil)
	require.NoError(t, next.RestoreState(doc))
	recs := next.Recommendations()
	require.Len(t, recs, 1)
	assert.Equal(t, "pre-push", recs[0].EventType)
}

func TestRestoreState_CorruptDocument(t *testing.T) {
	tr := NewTracker(testConfig(), nil)
	assert.Error(t, tr.RestoreState("{not json"))
	assert.Empty(t, tr.History())
}

func TestRestoreState_CapStillApplies(t *testing.T) {
	tr := NewTracker(testConfig(), nil)
	for i := 0; i < ExecutionHistoryCap; i++ {
		id := tr.Start("post-commit", fmt.Sprintf("run-%d", i))
		_, _ = tr.End(id, true)
	}
	doc, err := tr.StateJSON()
	require.NoError(t, err)

	next := NewTracker(testConfig(), nil)
	require.NoError(t, next.RestoreState(doc))
	id := next.Start("post-commit", "run-new")
	_, err = next.End(id, true)
	require.NoError(t, err)

	history := next.History()
	assert.Len(t, history, ExecutionHistoryCap)
	assert.Equal(t, "run-1", history[0].Context)
	assert.Equal(t, "run-new", history[len(history)-1].Context)
}

func TestRing_TailOrder(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Append(i)
	}
	assert.Equal(t, []int{3, 4, 5}, r.Items())
	assert.Equal(t, []int{4, 5}, r.Tail(2))
	assert.Equal(t, []int{3, 4, 5}, r.Tail(10))
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.Cap())
}
