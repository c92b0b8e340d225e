package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	mail *email.Email
	addr string
	auth smtp.Auth
}

func fakeEmailSink(errs ...error) (EmailSink, *[]sentMail) {
	var sent []sentMail
	sink := NewEmailSink(SmtpConfig{
		Server:       "smtp.example.com",
		Port:         587,
		EmailAddress: "watch@example.com",
		Password:     "secret",
	})
	sink.send = func(mail *email.Email, addr string, auth smtp.Auth) error {
		sent = append(sent, sentMail{mail: mail, addr: addr, auth: auth})
		if len(errs) >= len(sent) {
			return errs[len(sent)-1]
		}
		return nil
	}
	return sink, &sent
}

func TestEmailSinkPublish(t *testing.T) {
	sink, sent := fakeEmailSink()
	err := sink.Publish(context.Background(), "someone@example.com", "hello")
	require.NoError(t, err)

	require.Len(t, *sent, 1)
	mail := (*sent)[0]
	require.Equal(t, "smtp.example.com:587", mail.addr)
	require.NotNil(t, mail.auth)
	require.Equal(t, []string{"someone@example.com"}, mail.mail.To)
	require.Equal(t, "Perspectives Watch <watch@example.com>", mail.mail.From)
	require.Equal(t, "hello", string(mail.mail.Text))
}

func TestEmailSinkFallsBackWithoutAuth(t *testing.T) {
	sink, sent := fakeEmailSink(errors.New("smtp: server doesn't support AUTH"))
	err := sink.Publish(context.Background(), "someone@example.com", "hello")
	require.NoError(t, err)

	require.Len(t, *sent, 2)
	require.Nil(t, (*sent)[1].auth)
}

func TestEmailSinkError(t *testing.T) {
	sink, _ := fakeEmailSink(errors.New("connection refused"))
	err := sink.Publish(context.Background(), "someone@example.com", "hello")
	require.ErrorContains(t, err, "connection refused")
}

func TestLogSink(t *testing.T) {
	require.NoError(t, LogSink{}.Publish(context.Background(), "dest", "message"))
}
