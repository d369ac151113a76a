package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "mediapipe/0.1.0"

// NtfySubscriber posts a human-readable message to an ntfy topic URL.
type NtfySubscriber struct {
	endpoint string
	client   *http.Client
}

// NewNtfySubscriber posts to endpoint with the given request timeout.
func NewNtfySubscriber(endpoint string, timeout time.Duration) *NtfySubscriber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NtfySubscriber{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (n *NtfySubscriber) Name() string { return "ntfy" }

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

func (n *NtfySubscriber) Notify(ctx context.Context, event Event) error {
	return n.send(ctx, render(event))
}

func render(event Event) payload {
	name := strings.TrimSpace(event.Asset.Name)
	if name == "" {
		name = fmt.Sprintf("asset #%d", event.AssetID)
	}
	if event.Type == EventFailed {
		message := fmt.Sprintf("Processing failed: %s (%s)", name, event.Asset.Kind)
		if reason := strings.TrimSpace(event.Asset.ErrorMessage); reason != "" {
			message += "\n" + reason
		}
		return payload{
			title:    "mediapipe - Failed",
			message:  message,
			tags:     []string{"mediapipe", event.Asset.Kind, "failed"},
			priority: "high",
		}
	}
	return payload{
		title:   "mediapipe - Processed",
		message: fmt.Sprintf("Ready: %s (%s)", name, event.Asset.Kind),
		tags:    []string{"mediapipe", event.Asset.Kind, "completed"},
	}
}

func (n *NtfySubscriber) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
