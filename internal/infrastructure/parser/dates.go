package parser

import (
	"regexp"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006 15:04",
	"2006年01月02日 15:04",
	"2006年1月2日 15:04",
	"2006年01月02日",
	"2006年1月2日",
}

var dateExpr = regexp.MustCompile(`\d{4}[-/年]\d{1,2}[-/月]\d{1,2}日?(?:[ T]\d{1,2}:\d{2}(?::\d{2})?)?|[A-Z][a-z]+ \d{1,2}, \d{4}|\d{1,2} [A-Za-z]{3} \d{4}`)

// parseDate accepts the layouts common on news listing pages. Times without
// a zone are read as UTC.
func parseDate(text string) (time.Time, bool) {
	text = collapseSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	if t, ok := tryLayouts(text); ok {
		return t, true
	}
	if match := dateExpr.FindString(text); match != "" {
		return tryLayouts(match)
	}
	return time.Time{}, false
}

func tryLayouts(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
