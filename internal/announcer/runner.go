package announcer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const webhookAnnouncePath = "/announcements"

type Option func(*ppAnnouncer)

// Announcement describes a finished report.
type Announcement struct {
	Kind     string
	Period   string
	Entries  int
	Location string
}

type Service interface {
	Do(ctx context.Context, a Announcement) error
}

func WithWebhookURL(webhookURL string) Option {
	return func(ppa *ppAnnouncer) {
		ppa.baseURL = strings.TrimSpace(webhookURL)
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(ppa *ppAnnouncer) {
		ppa.client = client
	}
}

type ppAnnouncer struct {
	baseURL string
	client  *http.Client
}

func New(opts ...Option) *ppAnnouncer {
	announcer := &ppAnnouncer{}
	for _, opt := range opts {
		opt(announcer)
	}
	if announcer.client == nil {
		announcer.client = &http.Client{Timeout: 10 * time.Second}
	}
	return announcer
}

// Message formats the announcement text posted to the webhook.
func (a Announcement) Message() string {
	message := fmt.Sprintf("mailpulse: %s report for %s produced %d entries", a.Kind, a.Period, a.Entries)
	if a.Location != "" {
		message += " (" + a.Location + ")"
	}
	return message
}

// Do posts the announcement. Without a webhook URL it does nothing.
func (p *ppAnnouncer) Do(ctx context.Context, a Announcement) error {
	if p.baseURL == "" {
		return nil
	}
	baseURL := strings.TrimRight(p.baseURL, "/")
	payload, err := json.Marshal(map[string]string{"message": a.Message()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+webhookAnnouncePath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("reporting webhook returned status %s", resp.Status)
	}
	return nil
}
