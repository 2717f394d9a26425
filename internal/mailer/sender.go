package mailer

import (
	"bytes"
	"fmt"

	"github.com/wneessen/go-mail"

	"billoffice/internal/config"
)

// Sender delivers one message with a single attachment.
type Sender interface {
	Send(to, subject, body, attachmentName string, attachment []byte, contentType string) error
}

// SMTPSender sends via SMTP with optional plain auth.
type SMTPSender struct {
	cfg config.SMTPConfig
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(to, subject, body, attachmentName string, attachment []byte, contentType string) error {
	msg, err := buildMessage(s.cfg.From, to, subject, body, attachmentName, attachment, contentType)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.User),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

// buildMessage assembles the multipart message. Split out so tests can render
// it without a server.
func buildMessage(from, to, subject, body, attachmentName string, attachment []byte, contentType string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	if err := msg.AttachReader(attachmentName, bytes.NewReader(attachment),
		mail.WithFileContentType(mail.ContentType(contentType))); err != nil {
		return nil, fmt.Errorf("attach %s: %w", attachmentName, err)
	}
	return msg, nil
}
