package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SourceTally aggregates one source's outcomes within a cycle.
type SourceTally struct {
	Source           string                `json:"source"`
	Discovered       int                   `json:"discovered"`
	Processed        int                   `json:"processed"`
	Failed           int                   `json:"failed"`
	SkippedDuplicate int                   `json:"skipped_duplicate"`
	DataLoss         int                   `json:"data_loss"`
	Reasons          map[FailureReason]int `json:"reasons,omitempty"`
	SourceFailed     bool                  `json:"source_failed"`
	SourceError      string                `json:"source_error,omitempty"`
	SkippedDisabled  bool                  `json:"skipped_disabled"`
	Cancelled        bool                  `json:"cancelled,omitempty"`
	HealthState      HealthState           `json:"health_state,omitempty"`
	Duration         time.Duration         `json:"duration"`
}

// Add folds one article result into the tally.
func (t *SourceTally) Add(result ProcessingResult) {
	switch result.Status {
	case StatusProcessed:
		t.Processed++
	case StatusSkippedDuplicate:
		t.SkippedDuplicate++
	case StatusFailed:
		t.Failed++
		if t.Reasons == nil {
			t.Reasons = make(map[FailureReason]int)
		}
		t.Reasons[result.Reason]++
		if result.DataLoss {
			t.DataLoss++
		}
	}
}

// Attempted counts articles that reached a terminal result.
func (t SourceTally) Attempted() int {
	return t.Processed + t.Failed + t.SkippedDuplicate
}

// SuccessRate is processed over attempted, in the 0..1 range.
func (t SourceTally) SuccessRate() float64 {
	attempted := t.Attempted()
	if attempted == 0 {
		return 0
	}
	return float64(t.Processed) / float64(attempted)
}

// CycleStats is built fresh for every cycle and never mutated once reported.
type CycleStats struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Sources     []SourceTally `json:"sources"`
	Aborted     bool          `json:"aborted"`
	AbortReason string        `json:"abort_reason,omitempty"`
}

// Duration is the cycle's wall-clock time.
func (c *CycleStats) Duration() time.Duration {
	if c.FinishedAt.IsZero() {
		return 0
	}
	return c.FinishedAt.Sub(c.StartedAt)
}

// Totals sums every source tally.
func (c *CycleStats) Totals() SourceTally {
	total := SourceTally{Source: "total", Reasons: map[FailureReason]int{}}
	for _, t := range c.Sources {
		total.Discovered += t.Discovered
		total.Processed += t.Processed
		total.Failed += t.Failed
		total.SkippedDuplicate += t.SkippedDuplicate
		total.DataLoss += t.DataLoss
		for reason, n := range t.Reasons {
			total.Reasons[reason] += n
		}
	}
	return total
}

// SuccessRate is the global processed over attempted ratio.
func (c *CycleStats) SuccessRate() float64 {
	return c.Totals().SuccessRate()
}

// Tally returns the tally of a source, if it took part in the cycle.
func (c *CycleStats) Tally(source string) (SourceTally, bool) {
	for _, t := range c.Sources {
		if t.Source == source {
			return t, true
		}
	}
	return SourceTally{}, false
}

// FailedSources lists sources whose run failed as a whole.
func (c *CycleStats) FailedSources() []string {
	var names []string
	for _, t := range c.Sources {
		if t.SourceFailed {
			names = append(names, t.Source)
		}
	}
	sort.Strings(names)
	return names
}

// DisabledSources lists sources skipped because their health state was DISABLED.
func (c *CycleStats) DisabledSources() []string {
	var names []string
	for _, t := range c.Sources {
		if t.SkippedDisabled {
			names = append(names, t.Source)
		}
	}
	sort.Strings(names)
	return names
}

// HasFailures reports whether anything in the cycle went wrong.
func (c *CycleStats) HasFailures() bool {
	totals := c.Totals()
	return c.Aborted || totals.Failed > 0 || len(c.FailedSources()) > 0
}

// Summary renders a one-paragraph human readable report.
func (c *CycleStats) Summary() string {
	totals := c.Totals()
	var b strings.Builder
	fmt.Fprintf(&b, "cycle %s finished in %s: %d discovered, %d processed, %d failed, %d duplicates, success rate %.1f%%",
		c.ID, c.Duration().Round(time.Millisecond), totals.Discovered, totals.Processed, totals.Failed,
		totals.SkippedDuplicate, totals.SuccessRate()*100)
	if totals.DataLoss > 0 {
		fmt.Fprintf(&b, ", %d lost after dedup barrier", totals.DataLoss)
	}
	if failed := c.FailedSources(); len(failed) > 0 {
		fmt.Fprintf(&b, "; failed sources: %s", strings.Join(failed, ", "))
	}
	if disabled := c.DisabledSources(); len(disabled) > 0 {
		fmt.Fprintf(&b, "; disabled sources: %s", strings.Join(disabled, ", "))
	}
	if c.Aborted {
		fmt.Fprintf(&b, "; ABORTED: %s", c.AbortReason)
	}
	return b.String()
}
