package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	// Build idea bullets.
	var bullets []string
	limit := 3
	if len(n.Ideas) < limit {
		limit = len(n.Ideas)
	}
	for _, id := range n.Ideas[:limit] {
		bullets = append(bullets, fmt.Sprintf("• **%s** [%s] — %s", id.Title, id.EffortLevel, id.ElevatorPitch))
	}

	embed := map[string]any{
		"title": fmt.Sprintf("📈 %s", n.Narrative.Title),
		"description": fmt.Sprintf("**Strength:** %.2f | **Trend:** %s | **Signals:** %d\n\n%s\n\n%s",
			n.Narrative.Strength, n.Narrative.TrendDirection, len(n.Narrative.SignalIDs),
			n.Narrative.Summary, strings.Join(bullets, "\n")),
		"color":     0x9945FF,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	payload := map[string]any{
		"embeds": []map[string]any{embed},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}

	return nil
}
