package notification

import (
	"fmt"
	"mime"
	"net/http"
	"net/smtp"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"
)

// PushSender defines the interface for sending a web push notification.
type PushSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of PushSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// EmailSender delivers a plain-text email.
type EmailSender interface {
	Send(to, subject, body string) error
}

// SMTPSender sends email through an SMTP relay. Authentication is used when
// a username is configured.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	s := &SMTPSender{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: strings.TrimSpace(from),
	}
	if username != "" {
		s.auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

// Send implements EmailSender.
func (s *SMTPSender) Send(to, subject, body string) error {
	msg := buildMessage(s.from, to, subject, body)
	return smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg))
}

// headerValue drops line breaks so a value cannot start a new header.
var headerValue = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func buildMessage(from, to, subject, body string) string {
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		headerValue.Replace(from),
		headerValue.Replace(to),
		mime.QEncoding.Encode("utf-8", headerValue.Replace(subject)),
		body,
	)
}

// LogSender writes emails to the log instead of sending them. Used when no
// SMTP relay is configured.
type LogSender struct{}

// Send implements EmailSender.
func (LogSender) Send(to, subject, body string) error {
	log.Info().Str("to", to).Str("subject", subject).Int("body_bytes", len(body)).Msg("email (log sender)")
	return nil
}
