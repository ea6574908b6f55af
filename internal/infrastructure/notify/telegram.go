// Package notify posts cycle summaries to chat services.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"NewsCrawler/internal/config"
	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

const telegramAPI = "https://api.telegram.org"

// Telegram sends cycle summaries to a chat via the bot API.
type Telegram struct {
	baseURL      string
	botToken     string
	chatID       string
	notifyAlways bool
	client       *http.Client
}

var _ ports.CycleReporter = (*Telegram)(nil)

// NewTelegram registers bot token and chat identifier.
func NewTelegram(cfg config.TelegramConfig) *Telegram {
	return &Telegram{
		baseURL:      telegramAPI,
		botToken:     cfg.BotToken,
		chatID:       cfg.ChatID,
		notifyAlways: cfg.NotifyAlways,
		client:       &http.Client{Timeout: 5 * time.Second},
	}
}

// WithBaseURL points the notifier at another API host.
func (n *Telegram) WithBaseURL(base string) *Telegram {
	n.baseURL = strings.TrimRight(base, "/")
	return n
}

// ReportCycle posts the summary when the cycle had failures or NotifyAlways is set.
func (n *Telegram) ReportCycle(ctx context.Context, stats *domain.CycleStats) error {
	if !shouldNotify(stats, n.notifyAlways) {
		return nil
	}
	return n.Send(ctx, formatMessage(stats))
}

// Send posts a plain-text message.
func (n *Telegram) Send(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", redactToken(err, n.botToken))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("telegram error: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// redactToken keeps the bot token out of logged url.Errors.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "***"))
}
