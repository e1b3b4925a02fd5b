package connectors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sitincloud/owlyshield-predict/model"
)

// WebhookSink posts a JSON alert to a configured webhook URL on every kill,
// ported from the teacher's engine/alert.go Notifier (same SSRF-hardening
// validateWebhookURL check), adapted from a generic metric-threshold alert
// to the on_kill notification contract. The POST is synchronous, bounded by
// a 5s client timeout, and a status of 300 or above is returned as an error.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a sink that posts to rawURL. If rawURL is empty,
// every call is a no-op. The URL is fixed at construction.
func NewWebhookSink(rawURL string) *WebhookSink {
	return &WebhookSink{url: rawURL, client: &http.Client{Timeout: 5 * time.Second}}
}

func (w *WebhookSink) Name() string { return "webhook" }

func (w *WebhookSink) OnStartup(cfg map[string]string) error { return nil }

func (w *WebhookSink) OnTimestep(view model.FamilyView, step model.Timestep) error { return nil }

func (w *WebhookSink) OnKill(view model.FamilyView, score float32) error {
	if w.url == "" {
		return nil
	}
	if err := validateWebhookURL(w.url); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	body := map[string]interface{}{
		"event":     "kill",
		"appname":   view.AppName,
		"exe_path":  view.ExePath,
		"family_id": view.FamilyID,
		"score":     score,
		"pids":      view.Pids,
		"ts":        time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("webhook: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	}
	return nil
}

// validateWebhookURL checks that the webhook URL uses http/https and does
// not target localhost, link-local, or cloud metadata endpoints, ported
// directly from the teacher's engine/alert.go.
func validateWebhookURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https scheme, got %q", scheme)
	}
	host := strings.ToLower(u.Hostname())
	blocked := []string{"169.254.169.254", "metadata.google.internal", "localhost", "127.0.0.1", "::1", "[::1]"}
	for _, b := range blocked {
		if host == b {
			return fmt.Errorf("webhook URL host %q is blocked", host)
		}
	}
	return nil
}
