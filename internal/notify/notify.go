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

// Message is a Slack incoming-webhook payload.
type Message struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	Pretext  string  `json:"pretext,omitempty"`
	Fallback string  `json:"fallback"`
	Color    string  `json:"color,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
}

type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

const (
	ColorGood   = "good"
	ColorDanger = "danger"
)

// Sink delivers a formatted message to the team.
type Sink interface {
	Post(ctx context.Context, m Message) error
}

// SlackSink posts messages to a Slack incoming webhook.
type SlackSink struct {
	WebhookURL string
	Client     *http.Client
}

func NewSlackSink(webhookURL string) *SlackSink {
	return &SlackSink{
		WebhookURL: webhookURL,
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackSink) Post(ctx context.Context, m Message) error {
	if s.WebhookURL == "" {
		return fmt.Errorf("notify: slack webhook url is empty")
	}
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: slack post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: slack responded %d", resp.StatusCode)
	}
	return nil
}

// LogSink writes messages to the log. Used when no webhook is configured.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Post(ctx context.Context, m Message) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	for _, a := range m.Attachments {
		log.Info("notification", "pretext", a.Pretext, "fallback", a.Fallback, "color", a.Color)
	}
	return nil
}
