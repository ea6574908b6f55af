package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"NewsCrawler/internal/config"
	"NewsCrawler/internal/ports"
	"NewsCrawler/internal/retry"
)

// ErrTooShort is returned for raw content below the configured minimum length.
var ErrTooShort = errors.New("content too short for cleaning")

var jsonBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// APIError is a non-2xx answer of the chat completions endpoint.
type APIError struct {
	Code int
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm api returned %d: %s", e.Code, e.Body)
}

// Cleaner implements ports.Cleaner with an OpenAI-compatible chat completions API.
type Cleaner struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	minLength    int
	maxLength    int
	policy       retry.Policy
	quota        *rate.Limiter
	httpClient   *http.Client
	logger       *zap.Logger
}

var _ ports.Cleaner = (*Cleaner)(nil)

// NewCleaner builds a cleaner from configuration.
func NewCleaner(cfg config.CleanerConfig, logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	var quota *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		quota = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return &Cleaner{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		minLength:    cfg.MinContentLength,
		maxLength:    cfg.MaxContentLength,
		policy: retry.Policy{
			MaxAttempts:    cfg.MaxAttempts,
			InitialDelay:   cfg.InitialDelay,
			AttemptTimeout: timeout,
			IsRetryable:    isRetryable,
		},
		quota:      quota,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Clean sends raw text to the model and returns the cleaned article. Transient
// failures are retried with backoff; every attempt is bounded by the cleaner timeout.
func (c *Cleaner) Clean(ctx context.Context, raw, category string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("llm cleaner is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("llm cleaner misconfigured")
	}

	raw = strings.TrimSpace(raw)
	if utf8.RuneCountInString(raw) < c.minLength {
		return "", fmt.Errorf("%w: %d chars", ErrTooShort, utf8.RuneCountInString(raw))
	}
	if c.maxLength > 0 && utf8.RuneCountInString(raw) > c.maxLength {
		c.logger.Warn("content too long, truncating",
			zap.Int("chars", utf8.RuneCountInString(raw)),
			zap.Int("max", c.maxLength))
		raw = Truncate(raw, c.maxLength)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.prompt(category)},
			{Role: "user", Content: "Here is the raw content to process:\n\n" + raw},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	var answer string
	parent := ctx
	err = retry.Do(ctx, c.policy, func(ctx context.Context) error {
		// The quota wait is charged to the caller, not to the attempt timeout.
		if c.quota != nil {
			if err := c.quota.Wait(parent); err != nil {
				return retry.Permanent(fmt.Errorf("llm request quota: %w", err))
			}
		}
		text, err := c.complete(ctx, body)
		if err != nil {
			c.logger.Debug("cleaning attempt failed", zap.Error(err))
			return err
		}
		answer = text
		return nil
	})
	if err != nil {
		return "", err
	}

	return FormatCleaned(answer), nil
}

func (c *Cleaner) complete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &APIError{Code: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", retry.Permanent(fmt.Errorf("decode chat response: %w", err))
	}
	if len(decoded.Choices) == 0 {
		return "", retry.Permanent(errors.New("chat response has no choices"))
	}
	return decoded.Choices[0].Message.Content, nil
}

func (c *Cleaner) prompt(category string) string {
	prompt := strings.TrimSpace(c.systemPrompt)
	if prompt == "" {
		prompt = defaultPrompt
	}
	if category != "" {
		prompt += "\n\nThe article belongs to the " + category + " category."
	}
	return prompt
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return retry.IsTransient(err)
}

// Truncate cuts text to max runes, preferring the last sentence end in the final fifth.
func Truncate(text string, max int) string {
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	cut := string(runes[:max])
	if idx := strings.LastIndex(cut, "."); idx >= 0 && utf8.RuneCountInString(cut[:idx]) > max*8/10 {
		return cut[:idx+1]
	}
	return cut + "..."
}

type cleanedArticle struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Date     string `json:"date"`
	Category string `json:"category"`
	Content  string `json:"cleaned_content"`
}

// FormatCleaned turns the model answer into markdown. Answers that are not the
// requested JSON object are used verbatim.
func FormatCleaned(answer string) string {
	answer = strings.TrimSpace(answer)
	payload := answer
	if m := jsonBlock.FindStringSubmatch(answer); m != nil {
		payload = m[1]
	}

	var article cleanedArticle
	if err := json.Unmarshal([]byte(payload), &article); err != nil || strings.TrimSpace(article.Content) == "" {
		return answer
	}

	var b strings.Builder
	if article.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", article.Title)
	}
	if article.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n\n", article.Author)
	}
	if article.Date != "" {
		fmt.Fprintf(&b, "Date: %s\n\n", article.Date)
	}
	if article.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n\n", article.Category)
	}
	b.WriteString(strings.TrimSpace(article.Content))
	return b.String()
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const defaultPrompt = `You clean financial news articles extracted from web pages.
Remove navigation, advertisements, footers, sidebars, comment sections, sharing links and repeated titles.
Keep every figure, quote, price level and piece of market analysis intact. Do not summarise.
Answer with a JSON object in a json code block:
{"title": "...", "author": "...", "date": "...", "category": "...", "cleaned_content": "markdown text"}`
