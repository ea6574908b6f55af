package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsCrawler/internal/config"
)

func TestIntervalCadence(t *testing.T) {
	t.Parallel()

	c, err := NewIntervalCadence(time.Hour)
	require.NoError(t, err)

	start := time.Date(2025, 10, 6, 8, 10, 0, 0, time.UTC)
	assert.Equal(t, start.Add(time.Hour), c.Next(start))

	_, err = NewIntervalCadence(0)
	assert.Error(t, err)
}

func TestCronCadenceInLocation(t *testing.T) {
	t.Parallel()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	c, err := NewCronCadence("0 9 * * 1-5", tokyo)
	require.NoError(t, err)

	// Friday 2025-10-10 10:00 JST: next run is Monday 09:00 JST.
	from := time.Date(2025, 10, 10, 1, 0, 0, 0, time.UTC)
	next := c.Next(from)
	assert.True(t, next.Equal(time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC)), "got %s", next)
	assert.Contains(t, c.String(), "Asia/Tokyo")

	_, err = NewCronCadence("not cron", nil)
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	c, err := FromConfig(config.SchedulerConfig{Interval: 30 * time.Minute})
	require.NoError(t, err)
	assert.IsType(t, IntervalCadence{}, c)

	c, err = FromConfig(config.SchedulerConfig{Interval: time.Hour, CronExpression: "*/15 * * * *"})
	require.NoError(t, err)
	assert.IsType(t, &CronCadence{}, c)

	from := time.Date(2025, 10, 6, 8, 7, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 10, 6, 8, 15, 0, 0, time.UTC), c.Next(from).UTC())
}
