package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceTallySuccessRate(t *testing.T) {
	t.Parallel()

	var tally SourceTally
	assert.Zero(t, tally.SuccessRate())

	tally.Add(ProcessingResult{Status: StatusProcessed})
	tally.Add(ProcessingResult{Status: StatusSkippedDuplicate})
	tally.Add(ProcessingResult{Status: StatusProcessed})
	assert.InDelta(t, 2.0/3.0, tally.SuccessRate(), 1e-9)

	tally.Add(ProcessingResult{Status: StatusFailed, Reason: ReasonStorage, DataLoss: true})
	assert.Equal(t, 1, tally.Reasons[ReasonStorage])
	assert.Equal(t, 1, tally.DataLoss)
	assert.Equal(t, 4, tally.Attempted())
}

func TestCycleStatsSummary(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	stats := &CycleStats{
		ID:         "c1",
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Sources: []SourceTally{
			{Source: "babypips", Discovered: 3, Processed: 2, SkippedDuplicate: 1},
			{Source: "kabutan", SourceFailed: true, SourceError: "boom"},
			{Source: "dead", SkippedDisabled: true},
		},
	}

	assert.Equal(t, 90*time.Second, stats.Duration())
	assert.Equal(t, []string{"kabutan"}, stats.FailedSources())
	assert.Equal(t, []string{"dead"}, stats.DisabledSources())
	assert.True(t, stats.HasFailures())

	summary := stats.Summary()
	assert.Contains(t, summary, "2 processed")
	assert.Contains(t, summary, "failed sources: kabutan")
	assert.Contains(t, summary, "success rate 66.7%")

	tally, ok := stats.Tally("babypips")
	require.True(t, ok)
	assert.Equal(t, 3, tally.Discovered)
}

func TestStageErrorMatchesClassAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := ExtractionError("kabutan", cause)

	assert.ErrorIs(t, err, ErrExtraction)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrDuplicate)
	assert.False(t, IsFatal(err))
	assert.True(t, IsFatal(DuplicateError("", cause)))
	assert.Equal(t, "kabutan: extraction error: connection refused", err.Error())

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "kabutan", stageErr.Source)
}

func TestValidateSources(t *testing.T) {
	t.Parallel()

	ok := SourceConfig{Name: "a", Kind: KindFeed, Endpoint: "https://a", RateLimit: time.Second}
	require.NoError(t, ValidateSources([]SourceConfig{ok}))

	dup := []SourceConfig{ok, ok}
	assert.ErrorContains(t, ValidateSources(dup), "duplicate source name a")

	bad := ok
	bad.RateLimit = 0
	assert.ErrorContains(t, bad.Validate(), "rate limit")

	kind, err := ParseSourceKind("SCRAPE")
	require.NoError(t, err)
	assert.Equal(t, KindScrape, kind)
	_, err = ParseSourceKind("ftp")
	assert.Error(t, err)
}
