package infra

import (
	"context"
	"fmt"

	"github.com/hlwatch/tracker/business/dispatch/app"
	"github.com/hlwatch/tracker/business/dispatch/domain"
	"github.com/hlwatch/tracker/internal/httpclient"
)

// TelegramSender posts alert lines via a Telegram bot's sendMessage API.
type TelegramSender struct {
	botToken string
	chatID   string
	client   httpclient.Client
}

// NewTelegramSender constructs a TelegramSender.
func NewTelegramSender(botToken, chatID string, client httpclient.Client) *TelegramSender {
	return &TelegramSender{botToken: botToken, chatID: chatID, client: client}
}

var _ app.ChannelSender = (*TelegramSender)(nil)

// Send implements app.ChannelSender.
func (s *TelegramSender) Send(ctx context.Context, task domain.DispatchTask) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	resp, err := s.client.NewRequest().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"chat_id": s.chatID, "text": string(task.Payload)}).
		Post(ctx, url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return &app.TerminalError{Err: fmt.Errorf("telegram bot rejected payload: status %d", resp.StatusCode)}
		}
		return fmt.Errorf("telegram send failed: status %d", resp.StatusCode)
	}
	return nil
}
