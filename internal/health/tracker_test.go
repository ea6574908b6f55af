package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsCrawler/internal/domain"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTracker(degraded, disable int, cooldown time.Duration) (*Tracker, *clock) {
	c := &clock{now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	return NewTracker(Config{DegradedAfter: degraded, DisableAfter: disable, Cooldown: cooldown, Now: c.Now}), c
}

func TestTransitionsAtExactThresholds(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(3, 2, time.Hour)
	boom := errors.New("feed returned malformed XML")

	for i := 1; i <= 2; i++ {
		h := tr.RecordOutcome("kabutan", false, boom)
		assert.Equal(t, domain.HealthHealthy, h.State, "after %d failures", i)
	}
	assert.Equal(t, domain.HealthDegraded, tr.RecordOutcome("kabutan", false, boom).State)
	assert.Equal(t, domain.HealthDegraded, tr.RecordOutcome("kabutan", false, boom).State)

	h := tr.RecordOutcome("kabutan", false, boom)
	assert.Equal(t, domain.HealthDisabled, h.State)
	assert.Equal(t, 5, h.ConsecutiveFailures)
	assert.Equal(t, "feed returned malformed XML", h.LastError)
	assert.Equal(t, domain.HealthDisabled, tr.CurrentState("kabutan"))
}

func TestSuccessResets(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(2, 1, time.Hour)
	tr.RecordOutcome("a", false, nil)
	tr.RecordOutcome("a", false, nil)
	require.Equal(t, domain.HealthDegraded, tr.CurrentState("a"))

	h := tr.RecordOutcome("a", true, nil)
	assert.Equal(t, domain.HealthHealthy, h.State)
	assert.Zero(t, h.ConsecutiveFailures)

	// Counting restarts from zero.
	tr.RecordOutcome("a", false, nil)
	assert.Equal(t, domain.HealthHealthy, tr.CurrentState("a"))
}

func TestCooldownGrantsOneProbationaryAttempt(t *testing.T) {
	t.Parallel()

	tr, c := newTracker(1, 1, time.Hour)
	tr.RecordOutcome("a", false, nil)
	tr.RecordOutcome("a", false, nil)
	require.Equal(t, domain.HealthDisabled, tr.CurrentState("a"))

	c.now = c.now.Add(59 * time.Minute)
	assert.Equal(t, domain.HealthDisabled, tr.CurrentState("a"))

	c.now = c.now.Add(time.Minute)
	assert.Equal(t, domain.HealthHealthy, tr.CurrentState("a"))
	assert.True(t, tr.Health("a").Probation)

	// Probation failure disables again at once and restarts the cool-down.
	h := tr.RecordOutcome("a", false, errors.New("still down"))
	assert.Equal(t, domain.HealthDisabled, h.State)
	assert.Equal(t, domain.HealthDisabled, tr.CurrentState("a"))

	c.now = c.now.Add(time.Hour)
	require.Equal(t, domain.HealthHealthy, tr.CurrentState("a"))
	assert.Equal(t, domain.HealthHealthy, tr.RecordOutcome("a", true, nil).State)
	assert.False(t, tr.Health("a").Probation)
}

func TestZeroCooldownNeedsManualReset(t *testing.T) {
	t.Parallel()

	tr, c := newTracker(1, 0, 0)
	tr.RecordOutcome("a", false, nil)
	require.Equal(t, domain.HealthDisabled, tr.CurrentState("a"))

	c.now = c.now.Add(1000 * time.Hour)
	assert.Equal(t, domain.HealthDisabled, tr.CurrentState("a"))

	tr.Reset("a")
	assert.Equal(t, domain.HealthHealthy, tr.CurrentState("a"))
}

func TestSnapshotRestore(t *testing.T) {
	t.Parallel()

	tr, _ := newTracker(1, 1, time.Hour)
	tr.RecordOutcome("b", false, nil)
	tr.RecordOutcome("a", true, nil)

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Source)
	assert.Equal(t, domain.HealthDegraded, snap[1].State)

	restored, _ := newTracker(1, 1, time.Hour)
	restored.Restore(append(snap, domain.SourceHealth{Source: "c", State: "bogus"}))
	assert.Equal(t, domain.HealthDegraded, restored.CurrentState("b"))
	assert.Equal(t, domain.HealthHealthy, restored.CurrentState("c"))
	assert.Equal(t, domain.HealthDisabled, restored.RecordOutcome("b", false, nil).State)
}
