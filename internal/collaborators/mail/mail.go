// Package mail sends the build outcome notification email.
package mail

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/cifix/pipeline/internal/platform/envutil"
)

type Client interface {
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	To      string
	Subject string
	Body    string
}

type smtpClient struct {
	host     string
	port     string
	from     string
	username string
	password string
}

func NewSMTPClient() Client {
	return &smtpClient{
		host:     envutil.String("SMTP_HOST", "localhost"),
		port:     envutil.String("SMTP_PORT", "587"),
		from:     envutil.String("SMTP_FROM", "ci-fix-pipeline@localhost"),
		username: envutil.String("SMTP_USERNAME", ""),
		password: envutil.String("SMTP_PASSWORD", ""),
	}
}

// Send is a best-effort operation: the stage handler treats an SMTP
// failure as retryable, never a reason to fail the build it is reporting
// on, since the fix already landed (or was abandoned) independent of
// whether anyone is told about it.
func (c *smtpClient) Send(ctx context.Context, msg Message) error {
	addr := c.host + ":" + c.port
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", c.from, msg.To, msg.Subject, msg.Body)

	var auth smtp.Auth
	if c.username != "" {
		auth = smtp.PlainAuth("", c.username, c.password, c.host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, c.from, []string{msg.To}, []byte(body))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send notification email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
