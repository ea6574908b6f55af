package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

// Reporters fans cycle stats out to every sink. A failing or panicking sink never
// stops the others.
type Reporters struct {
	sinks  []ports.CycleReporter
	logger *zap.Logger
}

var _ ports.CycleReporter = (*Reporters)(nil)

// NewReporters skips nil sinks.
func NewReporters(logger *zap.Logger, sinks ...ports.CycleReporter) *Reporters {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reporters{logger: logger}
	for _, s := range sinks {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
	return r
}

// Add appends a sink.
func (r *Reporters) Add(sink ports.CycleReporter) {
	if sink != nil {
		r.sinks = append(r.sinks, sink)
	}
}

// ReportCycle delivers stats to every sink and joins their errors.
func (r *Reporters) ReportCycle(ctx context.Context, stats *domain.CycleStats) error {
	var errs []error
	for _, sink := range r.sinks {
		if err := r.deliver(ctx, sink, stats); err != nil {
			r.logger.Warn("cycle reporter failed", zap.String("reporter", fmt.Sprintf("%T", sink)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reporters) deliver(ctx context.Context, sink ports.CycleReporter, stats *domain.CycleStats) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reporter panicked: %v", rec)
		}
	}()
	return sink.ReportCycle(ctx, stats)
}
