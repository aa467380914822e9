// Package infra implements the dispatch bounded context's channel senders
// over the teacher's internal/httpclient.InstrumentedClient.
package infra

import (
	"context"
	"fmt"

	"github.com/hlwatch/tracker/business/dispatch/app"
	"github.com/hlwatch/tracker/business/dispatch/domain"
	"github.com/hlwatch/tracker/internal/httpclient"
)

// DiscordSender posts alert lines to a Discord incoming webhook.
type DiscordSender struct {
	webhookURL string
	client     httpclient.Client
}

// NewDiscordSender constructs a DiscordSender.
func NewDiscordSender(webhookURL string, client httpclient.Client) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: client}
}

var _ app.ChannelSender = (*DiscordSender)(nil)

// Send implements app.ChannelSender.
func (s *DiscordSender) Send(ctx context.Context, task domain.DispatchTask) error {
	resp, err := s.client.NewRequest().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"content": string(task.Payload)}).
		Post(ctx, s.webhookURL)
	if err != nil {
		return err
	}
	if resp.IsError() {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return &app.TerminalError{Err: fmt.Errorf("discord webhook rejected payload: status %d", resp.StatusCode)}
		}
		return fmt.Errorf("discord webhook send failed: status %d", resp.StatusCode)
	}
	return nil
}
