package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/hlwatch/tracker/business/dispatch/app"
	"github.com/hlwatch/tracker/business/dispatch/domain"
)

// EmailSender delivers the templated text/HTML pair over SMTP. No
// templating or mail library appears anywhere in the retrieval pack, so
// this uses the standard library directly (see DESIGN.md).
type EmailSender struct {
	smtpServer string
	smtpPort   int
	username   string
	password   string
	to         []string
}

// NewEmailSender constructs an EmailSender.
func NewEmailSender(server string, port int, username, password string, to []string) *EmailSender {
	return &EmailSender{smtpServer: server, smtpPort: port, username: username, password: password, to: to}
}

var _ app.ChannelSender = (*EmailSender)(nil)

// Send implements app.ChannelSender. It unmarshals the task payload (an
// app.EmailContent produced by app.FormatEmail) and submits it over SMTP.
func (s *EmailSender) Send(ctx context.Context, task domain.DispatchTask) error {
	var content app.EmailContent
	if err := json.Unmarshal(task.Payload, &content); err != nil {
		return &app.TerminalError{Err: fmt.Errorf("malformed email payload: %w", err)}
	}

	addr := fmt.Sprintf("%s:%d", s.smtpServer, s.smtpPort)
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.smtpServer)
	}

	msg := buildMIMEMessage(s.username, s.to, content)

	done := make(chan error, 1)
	go func() { done <- smtp.SendMail(addr, auth, s.username, s.to, msg) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func buildMIMEMessage(from string, to []string, content app.EmailContent) []byte {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", from))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", content.Subject))
	const boundary = "hlwatch-alert-boundary"
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary))
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(content.Text + "\r\n")
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(content.HTML + "\r\n")
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}
