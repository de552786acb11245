package cct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"probecloud.xyz/cct-backend/pkg/common"
	"probecloud.xyz/cct-backend/pkg/models"
)

// ChannelSender delivers one notification over one external transport.
// Implementations get a single attempt per event; the context carries the
// per-channel timeout.
type ChannelSender interface {
	Send(ctx context.Context, user *models.User, title, message string) error
}

// LogSender records the notification in the service log instead of calling
// out. It stands in for channels without a configured provider.
type LogSender struct {
	Channel models.Channel
}

func (s *LogSender) Send(_ context.Context, user *models.User, title, message string) error {
	common.GetLoggerWith(
		common.LoggerNameCCTCore,
		zap.String(common.LoggerFieldCCTCategory, common.LoggerCategoryNotify),
	).Info("Notification (log channel)",
		zap.String("channel", string(s.Channel)),
		zap.String("recipient", user.Email),
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

type webhookPayload struct {
	Recipient string `json:"recipient"`
	Title     string `json:"title"`
	Message   string `json:"message"`
}

// WebhookSender posts the notification as JSON to a provider endpoint
// (SMS gateway, push relay). A non-2xx response is a delivery failure.
type WebhookSender struct {
	Channel models.Channel
	URL     string
	Client  *http.Client
}

func (s *WebhookSender) Send(ctx context.Context, user *models.User, title, message string) error {
	recipient := user.Email
	if s.Channel == models.ChannelSMS {
		recipient = user.PhoneNumber
	}
	if recipient == "" {
		return fmt.Errorf("user %d has no %s recipient address", user.ID, s.Channel)
	}

	body, err := json.Marshal(webhookPayload{
		Recipient: recipient,
		Title:     title,
		Message:   message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
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
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s webhook returned status %d", s.Channel, resp.StatusCode)
	}
	return nil
}

// DefaultSenders wires every channel to a log sender, with webhooks for the
// channels that have a provider URL configured.
func DefaultSenders(smsWebhookURL, pushWebhookURL string) map[models.Channel]ChannelSender {
	senders := map[models.Channel]ChannelSender{
		models.ChannelEmail: &LogSender{Channel: models.ChannelEmail},
		models.ChannelSMS:   &LogSender{Channel: models.ChannelSMS},
		models.ChannelPush:  &LogSender{Channel: models.ChannelPush},
	}
	if smsWebhookURL != "" {
		senders[models.ChannelSMS] = &WebhookSender{Channel: models.ChannelSMS, URL: smsWebhookURL}
	}
	if pushWebhookURL != "" {
		senders[models.ChannelPush] = &WebhookSender{Channel: models.ChannelPush, URL: pushWebhookURL}
	}
	return senders
}
