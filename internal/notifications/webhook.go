// Package notifications posts fleet events to a Discord or Slack webhook.
// Delivery is best-effort and asynchronous; nothing in the pipeline ever
// waits on it.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/ethmatic-backend/internal/httputil"
)

type Sender struct {
	webhookURL string
	botName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
	log        zerolog.Logger
}

func NewSender(webhookURL, botName string, log zerolog.Logger) *Sender {
	if botName == "" {
		botName = "EthmaticFleet"
	}
	return &Sender{
		webhookURL: webhookURL,
		botName:    botName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
		},
		log: log.With().Str("component", "notifications").Logger(),
	}
}

// Notify logs the event and, when a webhook is configured, delivers it in
// the background.
func (s *Sender) Notify(title, body string) {
	s.log.Info().Str("title", title).Msg(body)
	if s.webhookURL == "" {
		return
	}
	go s.deliver(fmt.Sprintf("[%s] %s — %s", s.botName, title, body))
}

func (s *Sender) deliver(msg string) {
	payload, err := json.Marshal(s.formatPayload(msg))
	if err != nil {
		s.log.Error().Err(err).Msg("marshal webhook payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("webhook delivery failed after retries")
		return
	}
	resp.Body.Close()
}

// Discord and Slack want different payload shapes; the URL tells them
// apart.
func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.botName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.botName,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}
