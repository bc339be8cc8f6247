package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

type Sender interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

// SMTPSender sends email via unauthenticated SMTP (Mailpit-compatible) unless
// a username is configured.
type SMTPSender struct {
	host     string
	addr     string
	from     string
	username string
	password string
}

func NewSMTPSender(host, port, from, username, password string) *SMTPSender {
	host = strings.TrimSpace(host)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@detailbook.local"
	}
	return &SMTPSender{
		host:     host,
		addr:     fmt.Sprintf("%s:%s", host, strings.TrimSpace(port)),
		from:     from,
		username: strings.TrimSpace(username),
		password: password,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to string, subject string, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	return smtp.SendMail(s.addr, auth, s.from, []string{to}, []byte(BuildMessage(s.from, to, subject, body)))
}

// BuildMessage renders a minimal RFC 5322 plain-text message.
func BuildMessage(from, to, subject, body string) string {
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		sanitizeHeader(subject),
		body,
	)
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

type NoopSender struct{}

func (NoopSender) Send(context.Context, string, string, string) error { return nil }
