// Package metrics exports cycle statistics as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

const (
	// Namespace prefixes every metric of the crawler.
	Namespace = "newscrawler"
	subsystem = "cycle"
)

var healthStates = []domain.HealthState{domain.HealthHealthy, domain.HealthDegraded, domain.HealthDisabled}

// Reporter implements ports.CycleReporter by updating counters and gauges.
type Reporter struct {
	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	ArticlesTotal      *prometheus.CounterVec
	FailuresTotal      *prometheus.CounterVec
	DataLossTotal      *prometheus.CounterVec
	SourceFailures     *prometheus.CounterVec
	SourceHealth       *prometheus.GaugeVec
	LastSuccessRate    prometheus.Gauge
	LastCycleTimestamp prometheus.Gauge
	DocumentsDeleted   *prometheus.CounterVec
}

var (
	_ ports.CycleReporter    = (*Reporter)(nil)
	_ ports.DeletionReporter = (*Reporter)(nil)
)

// NewReporter creates and registers all crawler metrics on reg.
func NewReporter(reg prometheus.Registerer) *Reporter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Reporter{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "runs_total",
			Help:      "Crawl cycles by outcome",
		}, []string{"outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of crawl cycles",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2700},
		}),
		ArticlesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "articles_total",
			Help:      "Articles by source and terminal status",
		}, []string{"source", "status"}),
		FailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "article_failures_total",
			Help:      "Failed articles by source and reason",
		}, []string{"source", "reason"}),
		DataLossTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "data_loss_total",
			Help:      "Articles lost after their fingerprint was recorded",
		}, []string{"source"}),
		SourceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "source_failures_total",
			Help:      "Source runs that failed as a whole",
		}, []string{"source"}),
		SourceHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "source_health",
			Help:      "1 for the current health state of each source",
		}, []string{"source", "state"}),
		LastSuccessRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "last_success_rate",
			Help:      "Processed over attempted articles in the last cycle",
		}),
		LastCycleTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "last_finished_timestamp_seconds",
			Help:      "Unix time the last cycle finished",
		}),
		DocumentsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "documents_deleted_total",
			Help:      "Stored articles removed by retention, per backend",
		}, []string{"backend"}),
	}
}

// ReportCycle folds a finished cycle into the metrics.
func (r *Reporter) ReportCycle(_ context.Context, stats *domain.CycleStats) error {
	if stats == nil {
		return nil
	}

	outcome := "completed"
	if stats.Aborted {
		outcome = "aborted"
	}
	r.CyclesTotal.WithLabelValues(outcome).Inc()
	r.CycleDuration.Observe(stats.Duration().Seconds())
	r.LastSuccessRate.Set(stats.SuccessRate())
	if !stats.FinishedAt.IsZero() {
		r.LastCycleTimestamp.Set(float64(stats.FinishedAt.Unix()))
	}

	for _, t := range stats.Sources {
		r.ArticlesTotal.WithLabelValues(t.Source, string(domain.StatusProcessed)).Add(float64(t.Processed))
		r.ArticlesTotal.WithLabelValues(t.Source, string(domain.StatusFailed)).Add(float64(t.Failed))
		r.ArticlesTotal.WithLabelValues(t.Source, string(domain.StatusSkippedDuplicate)).Add(float64(t.SkippedDuplicate))
		for reason, n := range t.Reasons {
			r.FailuresTotal.WithLabelValues(t.Source, string(reason)).Add(float64(n))
		}
		if t.DataLoss > 0 {
			r.DataLossTotal.WithLabelValues(t.Source).Add(float64(t.DataLoss))
		}
		if t.SourceFailed {
			r.SourceFailures.WithLabelValues(t.Source).Inc()
		}
		if t.HealthState != "" {
			r.setHealth(t.Source, t.HealthState)
		}
	}
	return nil
}

// ReportDeleted adds a retention pass result for one backend.
func (r *Reporter) ReportDeleted(backend string, n int64) {
	r.DocumentsDeleted.WithLabelValues(backend).Add(float64(n))
}

func (r *Reporter) setHealth(source string, current domain.HealthState) {
	for _, state := range healthStates {
		value := 0.0
		if state == current {
			value = 1
		}
		r.SourceHealth.WithLabelValues(source, string(state)).Set(value)
	}
}
