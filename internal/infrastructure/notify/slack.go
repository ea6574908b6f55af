package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"NewsCrawler/internal/config"
	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

// Slack posts cycle summaries to an incoming webhook.
type Slack struct {
	webhookURL   string
	notifyAlways bool
	client       *http.Client
}

var _ ports.CycleReporter = (*Slack)(nil)

// NewSlack builds a webhook notifier.
func NewSlack(cfg config.SlackConfig) *Slack {
	return &Slack{
		webhookURL:   cfg.WebhookURL,
		notifyAlways: cfg.NotifyAlways,
		client:       &http.Client{Timeout: 5 * time.Second},
	}
}

// ReportCycle posts the summary when the cycle had failures or NotifyAlways is set.
func (s *Slack) ReportCycle(ctx context.Context, stats *domain.CycleStats) error {
	if !shouldNotify(stats, s.notifyAlways) {
		return nil
	}
	if s.webhookURL == "" {
		return fmt.Errorf("slack notifier misconfigured")
	}

	body, err := json.Marshal(map[string]string{"text": formatMessage(stats)})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("slack error: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}
