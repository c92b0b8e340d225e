package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("perspectives/notify")

const emailSubject = "New Perspectives sessions"

type SmtpConfig struct {
	Server       string
	Port         int
	EmailAddress string
	Password     string
}

// EmailSink sends notifications as plain text email, the destination is the
// recipient address.
type EmailSink struct {
	config SmtpConfig
	send   func(mail *email.Email, addr string, auth smtp.Auth) error
}

func NewEmailSink(config SmtpConfig) EmailSink {
	return EmailSink{
		config: config,
		send: func(mail *email.Email, addr string, auth smtp.Auth) error {
			return mail.Send(addr, auth)
		},
	}
}

func (s EmailSink) compose(recipient, message string) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Perspectives Watch <%s>", s.config.EmailAddress)
	mail.To = []string{recipient}
	mail.Subject = emailSubject
	mail.Text = []byte(message)
	return mail
}

func (s EmailSink) Publish(ctx context.Context, recipient, message string) error {
	_, span := tracer.Start(ctx, "EmailSink.Publish")
	defer span.End()

	mail := s.compose(recipient, message)
	addr := fmt.Sprintf("%s:%d", s.config.Server, s.config.Port)

	err := s.send(
		mail, addr,
		smtp.PlainAuth("", s.config.EmailAddress, s.config.Password, s.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = s.send(mail, addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return fmt.Errorf("send email to %s: %w", recipient, err)
	}

	return nil
}
