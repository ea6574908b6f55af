package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
	"unicode"
)

// ArticleMetadata is what discovery yields for a candidate article.
type ArticleMetadata struct {
	Source      string
	URL         string
	Title       string
	PublishedAt *time.Time
	Tags        []string
}

// Fingerprint identifies an article for deduplication. It is the hex SHA-256 of the
// normalized title and the canonical URL.
func (a ArticleMetadata) Fingerprint() string {
	sum := sha256.Sum256([]byte(NormalizeTitle(a.Title) + "\n" + CanonicalURL(a.URL)))
	return hex.EncodeToString(sum[:])
}

// ArticleRecord is the cleaned article handed to storage.
type ArticleRecord struct {
	Fingerprint string
	Source      string
	Category    string
	URL         string
	Title       string
	PublishedAt *time.Time
	Tags        []string
	RawContent  string
	Content     string
	CrawledAt   time.Time
}

var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"dclid":   {},
	"msclkid": {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
}

// NormalizeTitle lowercases, keeps letters, digits and spaces, and collapses whitespace.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// CanonicalURL normalizes a URL so that trivially different links to the same page
// compare equal. Unparseable input is returned trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(host, ":80")) || (u.Scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""

	if u.Path != "" {
		cleaned := path.Clean(u.Path)
		if cleaned == "." || cleaned == "/" {
			cleaned = ""
		}
		u.Path = strings.TrimSuffix(cleaned, "/")
		u.RawPath = ""
	}

	query := u.Query()
	keys := make([]string, 0, len(query))
	for key := range query {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			continue
		}
		if _, ok := trackingParams[lower]; ok {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		values := query[key]
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v))
		}
	}
	u.RawQuery = strings.Join(parts, "&")
	u.ForceQuery = false

	return u.String()
}
