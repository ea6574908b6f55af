// Package fetch issues the polite HTTP GETs shared by discovery and extraction.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const (
	defaultUserAgent    = "NewsCrawler/1.0"
	defaultMaxBodyBytes = 5 << 20
	defaultRobotsTTL    = time.Hour
	robotsMaxBytes      = 512 << 10
)

// ErrDisallowed is returned when robots.txt forbids the URL for our user agent.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// ErrBodyTooLarge is returned when a response exceeds the configured body cap.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError reports a non-2xx response.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned %s", e.URL, e.Status)
}

// Options configure a Fetcher.
type Options struct {
	Client        *http.Client
	UserAgent     string
	MaxBodyBytes  int64
	RespectRobots bool
	RobotsTTL     time.Duration
	Logger        *zap.Logger
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// Fetcher is safe for concurrent use.
type Fetcher struct {
	client        *http.Client
	userAgent     string
	maxBody       int64
	respectRobots bool
	robotsTTL     time.Duration
	logger        *zap.Logger

	mu     sync.Mutex
	robots map[string]robotsEntry
}

// New builds a fetcher; the zero Options give a 30s client without robots checks.
func New(opts Options) *Fetcher {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.RobotsTTL <= 0 {
		opts.RobotsTTL = defaultRobotsTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Fetcher{
		client:        opts.Client,
		userAgent:     opts.UserAgent,
		maxBody:       opts.MaxBodyBytes,
		respectRobots: opts.RespectRobots,
		robotsTTL:     opts.RobotsTTL,
		logger:        opts.Logger,
		robots:        make(map[string]robotsEntry),
	}
}

// Get downloads target. Bodies over MaxBodyBytes fail with ErrBodyTooLarge.
func (f *Fetcher) Get(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid url %q", target)
	}

	if f.respectRobots {
		allowed, err := f.allowed(ctx, parsed)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", target, ErrDisallowed)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{URL: target, Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", target, err)
	}
	if int64(len(body)) > f.maxBody {
		f.logger.Warn("response body over cap", zap.String("url", target), zap.Int64("max_bytes", f.maxBody))
		return nil, fmt.Errorf("%s: more than %d bytes: %w", target, f.maxBody, ErrBodyTooLarge)
	}
	return body, nil
}

// Document downloads and parses an HTML page. The raw bytes are returned alongside.
func (f *Fetcher) Document(ctx context.Context, target string, headers map[string]string) (*goquery.Document, []byte, error) {
	body, err := f.Get(ctx, target, headers)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, body, nil
}

func (f *Fetcher) allowed(ctx context.Context, target *url.URL) (bool, error) {
	robots, err := f.robotsFor(ctx, target)
	if err != nil {
		return false, err
	}
	if robots == nil {
		return true, nil
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return robots.TestAgent(path, f.userAgent), nil
}

// robotsFor returns the cached robots.txt of target's host, fetching it when stale.
// Unreachable robots files allow everything.
func (f *Fetcher) robotsFor(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	key := target.Scheme + "://" + target.Host

	f.mu.Lock()
	entry, ok := f.robots[key]
	f.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < f.robotsTTL {
		return entry.data, nil
	}

	data, err := f.fetchRobots(ctx, key+"/robots.txt")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Debug("robots.txt unavailable, allowing", zap.String("host", target.Host), zap.Error(err))
		data = nil
	}

	f.mu.Lock()
	f.robots[key] = robotsEntry{data: data, fetchedAt: time.Now()}
	f.mu.Unlock()
	return data, nil
}

func (f *Fetcher) fetchRobots(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		return nil, err
	}
	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}
