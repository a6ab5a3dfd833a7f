package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// GotifySettings holds configuration for a Gotify notification channel.
type GotifySettings struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// Gotify sends notifications to a Gotify server via its REST API.
type Gotify struct {
	url    string
	token  string
	client *http.Client
}

// NewGotify creates a Gotify notifier.
// URL should be the base Gotify server URL (e.g. "http://gotify.example.com").
// Token is the application token used for authentication.
func NewGotify(url, token string) *Gotify {
	return &Gotify{
		url:    strings.TrimRight(url, "/"),
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the provider name for logging.
func (g *Gotify) Name() string { return "gotify" }

// Send posts a notification message to Gotify.
func (g *Gotify) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(gotifyMessage{
		Title:    formatTitle(event),
		Message:  formatMessage(event),
		Priority: priority(event),
	})
	if err != nil {
		return fmt.Errorf("marshal gotify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+"/message", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create gotify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gotify-Key", g.token)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("send gotify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gotify returned %s", resp.Status)
	}
	return nil
}

type gotifyMessage struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
}

// formatTitle produces a human-readable notification title, prefixed
// with the severity emoji so channels without color support still
// convey urgency.
func formatTitle(e Event) string {
	prefix := "Infra-Mapper"
	if e.Type == EventAlertResolved {
		return prefix + ": Resolved — " + e.Title
	}
	return severityEmoji(e.Severity) + " " + prefix + ": " + e.Title
}

// formatMessage builds the notification body from event fields.
func formatMessage(e Event) string {
	var b strings.Builder
	b.WriteString(e.Message)
	b.WriteString("\n")
	if len(e.HostRefs) > 0 {
		fmt.Fprintf(&b, "Hosts: %s\n", strings.Join(e.HostRefs, ", "))
	}
	if len(e.ContainerRefs) > 0 {
		fmt.Fprintf(&b, "Containers: %s\n", strings.Join(e.ContainerRefs, ", "))
	}
	fmt.Fprintf(&b, "Severity: %s\n", e.Severity)
	return b.String()
}

// priority returns Gotify priority (1-10): critical alerts page loudly,
// info/resolved notices are quiet.
func priority(e Event) int {
	if e.Type == EventAlertResolved {
		return 3
	}
	switch e.Severity {
	case "critical":
		return 8
	case "warning":
		return 5
	default:
		return 3
	}
}

// severityEmoji returns a glyph matching the alert's severity, used by
// providers with no native color/priority support.
func severityEmoji(severity string) string {
	switch severity {
	case "critical":
		return "\U0001f534" // red circle
	case "warning":
		return "\U0001f7e0" // orange circle
	default:
		return "\U0001f7e2" // green circle
	}
}
