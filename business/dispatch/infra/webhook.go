package infra

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hlwatch/tracker/business/dispatch/app"
	"github.com/hlwatch/tracker/business/dispatch/domain"
	"github.com/hlwatch/tracker/internal/httpclient"
)

// WebhookSender posts the JSON envelope to a generic operator-configured
// endpoint with custom headers (e.g. a bearer token).
type WebhookSender struct {
	url     string
	headers map[string]string
	client  httpclient.Client
}

// NewWebhookSender constructs a WebhookSender.
func NewWebhookSender(url string, headers map[string]string, client httpclient.Client) *WebhookSender {
	return &WebhookSender{url: url, headers: headers, client: client}
}

var _ app.ChannelSender = (*WebhookSender)(nil)

// Send implements app.ChannelSender.
func (s *WebhookSender) Send(ctx context.Context, task domain.DispatchTask) error {
	resp, err := s.client.NewRequest().
		SetHeader("Content-Type", "application/json").
		SetHeaders(s.headers).
		SetBody(json.RawMessage(task.Payload)).
		Post(ctx, s.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return &app.TerminalError{Err: fmt.Errorf("webhook endpoint rejected payload: status %d", resp.StatusCode)}
		}
		return fmt.Errorf("webhook send failed: status %d", resp.StatusCode)
	}
	return nil
}
