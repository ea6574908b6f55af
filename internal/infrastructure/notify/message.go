package notify

import (
	"fmt"
	"strings"

	"NewsCrawler/internal/domain"
)

func shouldNotify(stats *domain.CycleStats, always bool) bool {
	if stats == nil {
		return false
	}
	return always || stats.HasFailures()
}

// formatMessage renders the summary plus one line per source that lost articles.
func formatMessage(stats *domain.CycleStats) string {
	var b strings.Builder
	prefix := "NewsCrawler"
	if stats.Aborted {
		prefix += " [ABORTED]"
	} else if stats.HasFailures() {
		prefix += " [FAILURES]"
	}
	b.WriteString(prefix)
	b.WriteString("\n")
	b.WriteString(stats.Summary())

	for _, t := range stats.Sources {
		switch {
		case t.SourceFailed:
			fmt.Fprintf(&b, "\n- %s: source failed: %s", t.Source, t.SourceError)
		case t.Cancelled:
			fmt.Fprintf(&b, "\n- %s: cancelled before discovery finished", t.Source)
		case t.Failed > 0:
			fmt.Fprintf(&b, "\n- %s: %d of %d failed", t.Source, t.Failed, t.Attempted())
			if t.DataLoss > 0 {
				fmt.Fprintf(&b, " (%d lost)", t.DataLoss)
			}
		}
	}
	return b.String()
}
