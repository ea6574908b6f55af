package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"NewsCrawler/internal/domain"
)

func newTable() table.Writer {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	return w
}

// renderCycle prints one row per source plus a totals footer.
func renderCycle(stats *domain.CycleStats) string {
	w := newTable()
	w.AppendHeader(table.Row{"Source", "Discovered", "Processed", "Failed", "Duplicates", "Data loss", "Success", "Health", "Note"})
	for _, t := range stats.Sources {
		w.AppendRow(table.Row{
			t.Source, t.Discovered, t.Processed, t.Failed, t.SkippedDuplicate, t.DataLoss,
			percent(t.SuccessRate()), string(t.HealthState), sourceNote(t),
		})
	}
	totals := stats.Totals()
	w.AppendFooter(table.Row{
		"total", totals.Discovered, totals.Processed, totals.Failed, totals.SkippedDuplicate, totals.DataLoss,
		percent(stats.SuccessRate()), "", "",
	})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 9, WidthMax: 60},
	})
	return w.Render()
}

func sourceNote(t domain.SourceTally) string {
	switch {
	case t.SkippedDisabled:
		return "skipped: disabled"
	case t.SourceFailed:
		return t.SourceError
	case t.Cancelled:
		return "cancelled"
	default:
		return ""
	}
}

// renderSources lists the effective per-source settings after defaults.
func renderSources(sources []domain.SourceConfig) string {
	w := newTable()
	w.AppendHeader(table.Row{"Name", "Kind", "Endpoint", "Rate limit", "Max articles", "Timeout", "Category"})
	for _, s := range sources {
		w.AppendRow(table.Row{
			s.Name, string(s.Kind), s.Endpoint, s.RateLimit.String(), s.MaxArticles,
			s.Timeout.Round(time.Millisecond).String(), s.Category,
		})
	}
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: 60},
		{Number: 5, Align: text.AlignRight},
	})
	return w.Render()
}

func percent(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
