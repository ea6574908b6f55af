package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"NewsCrawler/internal/config"
	"NewsCrawler/internal/usecase"
)

// IntervalCadence starts cycles a fixed interval apart, measured from cycle start.
type IntervalCadence struct {
	interval time.Duration
}

var _ usecase.Cadence = IntervalCadence{}

// NewIntervalCadence rejects non-positive intervals.
func NewIntervalCadence(interval time.Duration) (IntervalCadence, error) {
	if interval <= 0 {
		return IntervalCadence{}, fmt.Errorf("interval must be positive, got %s", interval)
	}
	return IntervalCadence{interval: interval}, nil
}

// Next returns from plus the interval.
func (c IntervalCadence) Next(from time.Time) time.Time {
	return from.Add(c.interval)
}

// CronCadence starts cycles on a standard five-field cron expression in a fixed zone.
type CronCadence struct {
	expr     string
	schedule cron.Schedule
	location *time.Location
}

var _ usecase.Cadence = (*CronCadence)(nil)

// NewCronCadence parses expr; a nil location means UTC.
func NewCronCadence(expr string, loc *time.Location) (*CronCadence, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronCadence{expr: expr, schedule: schedule, location: loc}, nil
}

// Next returns the first activation strictly after from.
func (c *CronCadence) Next(from time.Time) time.Time {
	return c.schedule.Next(from.In(c.location))
}

// String reports the expression for logs.
func (c *CronCadence) String() string {
	return c.expr + " (" + c.location.String() + ")"
}

// FromConfig prefers the cron expression and falls back to the interval.
func FromConfig(cfg config.SchedulerConfig) (usecase.Cadence, error) {
	if cfg.CronExpression != "" {
		return NewCronCadence(cfg.CronExpression, cfg.Location())
	}
	return NewIntervalCadence(cfg.Interval)
}
