// Package mail delivers the transactional messages the service sends.
package mail

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"

	"github.com/mrz1836/postmark"
)

var ErrSendFailed = errors.New("mail: send failed")

type Sender interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// ResetLink appends the raw reset token to the configured front-end URL.
func ResetLink(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse reset url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type PostmarkSender struct {
	client *postmark.Client
	from   string
}

func NewPostmarkSender(serverToken, accountToken, from string) *PostmarkSender {
	return &PostmarkSender{client: postmark.NewClient(serverToken, accountToken), from: from}
}

func (s *PostmarkSender) SendPasswordReset(ctx context.Context, to, link string) error {
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.from,
		To:       to,
		Subject:  "Reset your password",
		Tag:      "password-reset",
		TextBody: passwordResetText(link),
		HTMLBody: passwordResetHTML(link),
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

// LogSender is used when no Postmark token is configured. It logs the
// recipient but never the link, which is a credential.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendPasswordReset(ctx context.Context, to, _ string) error {
	s.logger.InfoContext(ctx, "password reset mail suppressed", "to", to)
	return nil
}

func passwordResetText(link string) string {
	return "A password reset was requested for your account.\n\n" +
		"Open the link below to choose a new password. It can be used once and expires soon.\n\n" +
		link + "\n\nIf you did not request this, ignore this message."
}

func passwordResetHTML(link string) string {
	return `<p>A password reset was requested for your account.</p>` +
		`<p><a href="` + html.EscapeString(link) + `">Choose a new password</a>. The link can be used once and expires soon.</p>` +
		`<p>If you did not request this, ignore this message.</p>`
}
