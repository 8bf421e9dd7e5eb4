package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// webhookChannel posts alerts to a chat webhook as {"text": "..."}, the
// shape Slack-compatible incoming webhooks accept.
type webhookChannel struct {
	name       string
	url        string
	httpClient *http.Client
}

func newWebhookChannel(name, url string) *webhookChannel {
	return &webhookChannel{
		name:       name,
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *webhookChannel) Name() string { return c.name }

func (c *webhookChannel) Send(ctx context.Context, subject, body string) error {
	text := subject
	if body != "" {
		text += "\n" + body
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting to webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

// desktopChannel raises a local desktop alert via the platform notifier CLI.
type desktopChannel struct {
	name string
}

func newDesktopChannel(name string) *desktopChannel {
	return &desktopChannel{name: name}
}

func (c *desktopChannel) Name() string { return c.name }

func (c *desktopChannel) Send(ctx context.Context, subject, body string) error {
	return desktopNotify(ctx, subject, body)
}

// logChannel writes alerts to the process log. Useful as an always-on
// fallback channel in headless deployments.
type logChannel struct {
	name   string
	logger *slog.Logger
}

func (c logChannel) Name() string { return c.name }

func (c logChannel) Send(_ context.Context, subject, body string) error {
	c.logger.Info("notification", "subject", subject, "body", body)
	return nil
}
