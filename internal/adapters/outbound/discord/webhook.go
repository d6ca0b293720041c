// Package discord sends operational alerts to a Discord channel via an
// incoming webhook, used by the monitor to surface critical findings
// without anyone having to tail logs.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oddyssey-cycle/engine/internal/domain"
	"github.com/oddyssey-cycle/engine/internal/telemetry"
)

type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

func (n *Notifier) SendEmbed(ctx context.Context, embed Embed) error {
	if embed.Timestamp == "" {
		embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return n.send(ctx, webhookPayload{Embeds: []Embed{embed}})
}

func (n *Notifier) send(ctx context.Context, payload webhookPayload) error {
	if !n.Enabled() {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		telemetry.Warnf("discord: rate limited")
		return fmt.Errorf("discord rate limited")
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook: status=%d", resp.StatusCode)
	}

	return nil
}

const (
	colorRed    = 0xE74C3C
	colorYellow = 0xF1C40F
	colorBlue   = 0x3498DB
)

func severityColor(sev domain.Severity) int {
	switch sev {
	case domain.Critical:
		return colorRed
	case domain.Warning:
		return colorYellow
	default:
		return colorBlue
	}
}

// AlertRaised posts a monitor finding as a Discord embed. Callers typically
// only forward Critical (and optionally Warning) severities to avoid
// flooding the channel with routine Info findings.
func (n *Notifier) AlertRaised(ctx context.Context, a domain.Alert) error {
	fields := make([]Field, 0, len(a.Details))
	for k, v := range a.Details {
		fields = append(fields, Field{Name: k, Value: fmt.Sprintf("%v", v), Inline: true})
	}
	return n.SendEmbed(ctx, Embed{
		Title:  fmt.Sprintf("oddyssey alert — %s", a.Severity),
		Color:  severityColor(a.Severity),
		Fields: fields,
	})
}
