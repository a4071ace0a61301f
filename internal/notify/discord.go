// Package notify delivers new-mail notifications to Discord and files
// Gitea issues for analyzed threads.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// embedColor is the blue Discord uses for informational embeds
const embedColor = 3447003

// requestTimeout bounds a single webhook or API call
const requestTimeout = 10 * time.Second

// Discord posts embed notifications to a webhook URL
type Discord struct {
	client *http.Client
	log    *logrus.Logger
}

// NewDiscord creates a Discord notifier
func NewDiscord(log *logrus.Logger) *Discord {
	return &Discord{
		client: &http.Client{Timeout: requestTimeout},
		log:    log,
	}
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Fields    []discordField `json:"fields"`
	Timestamp string         `json:"timestamp"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// NotifyNewEmail posts a new-mail embed to the webhook
func (d *Discord) NotifyNewEmail(ctx context.Context, webhookURL, customerName, from, subject, summary string) error {
	payload := discordPayload{
		Embeds: []discordEmbed{{
			Title: fmt.Sprintf("📧 新着メール: %s", customerName),
			Color: embedColor,
			Fields: []discordField{
				{Name: "送信者", Value: orDash(from)},
				{Name: "件名", Value: orDash(subject)},
				{Name: "要約", Value: orDash(summary)},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned %d", resp.StatusCode)
	}

	d.log.WithField("customer", customerName).Info("Discord notification sent")
	return nil
}

// Discord rejects embed fields with empty values
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
