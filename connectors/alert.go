package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/sitincloud/owlyshield-predict/model"
)

// AlertConfig defines the notification destinations the alert sink fans a
// kill out to. Every field is optional; an empty config disables the sink.
type AlertConfig struct {
	Email            string
	SlackWebhook     string
	TelegramBotToken string
	TelegramChatID   string
}

// AlertSink is the C9 user-notification sink for operator channels beyond
// the plain webhook: Slack incoming webhook, Telegram bot, and email via
// the system mail command. One destination failing never blocks the others.
type AlertSink struct {
	cfg    AlertConfig
	client *http.Client
}

// NewAlertSink creates an alert sink for cfg's destinations.
func NewAlertSink(cfg AlertConfig) *AlertSink {
	return &AlertSink{cfg: cfg, client: &http.Client{Timeout: 5 * time.Second}}
}

// Enabled returns true if any alert destination is configured.
func (a *AlertSink) Enabled() bool {
	return a.cfg.Email != "" || a.cfg.SlackWebhook != "" ||
		(a.cfg.TelegramBotToken != "" && a.cfg.TelegramChatID != "")
}

func (a *AlertSink) Name() string { return "alert" }

func (a *AlertSink) OnStartup(cfg map[string]string) error { return nil }

func (a *AlertSink) OnTimestep(view model.FamilyView, step model.Timestep) error { return nil }

// OnKill dispatches a formatted alert to every configured channel.
func (a *AlertSink) OnKill(view model.FamilyView, score float32) error {
	subject := fmt.Sprintf("owlyshield-predict: %s killed", view.AppName)
	text := fmt.Sprintf("%s (gid %d, %s) scored %.2f and was killed; %d files updated, %d created",
		view.AppName, view.FamilyID, view.ExePath, score, len(view.PathsUpdated), len(view.PathsCreated))

	var errs []string
	if a.cfg.SlackWebhook != "" {
		if err := a.sendSlack(text); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if a.cfg.TelegramBotToken != "" && a.cfg.TelegramChatID != "" {
		if err := a.sendTelegram(text); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if a.cfg.Email != "" {
		if err := a.sendEmail(subject, text); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("alert: %s", strings.Join(errs, "; "))
	}
	return nil
}

// sendSlack posts a message to a Slack incoming webhook.
func (a *AlertSink) sendSlack(text string) error {
	if err := validateWebhookURL(a.cfg.SlackWebhook); err != nil {
		return fmt.Errorf("slack webhook blocked: %w", err)
	}
	data, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	return a.post(a.cfg.SlackWebhook, data)
}

// sendTelegram posts a message via the Telegram Bot API.
func (a *AlertSink) sendTelegram(text string) error {
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", a.cfg.TelegramBotToken)
	data, err := json.Marshal(map[string]string{
		"chat_id": a.cfg.TelegramChatID,
		"text":    text,
	})
	if err != nil {
		return err
	}
	return a.post(apiURL, data)
}

func (a *AlertSink) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d from %s", resp.StatusCode, url)
	}
	return nil
}

// sendEmail sends an email using the system mail command.
func (a *AlertSink) sendEmail(subject, body string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "mail", "-s", subject, a.cfg.Email)
	cmd.Stdin = strings.NewReader(body)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}
