package notify

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"
)

// SMTPConfig configures the bundled SMTP email sender.
type SMTPConfig struct {
	Host               string
	Port               int
	From               string
	Username           string
	Password           string
	TLSMode            string // "auto" | "ssl" | "none"
	InsecureSkipVerify bool   // dev only
}

// SMTPSender sends one-time codes as plain-text email via go-mail.
type SMTPSender struct {
	config SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	return &SMTPSender{config: cfg}
}

var purposeSubjects = map[string]string{
	"login":              "Your login code",
	"password_reset":     "Your password reset code",
	"email_verification": "Verify your email address",
	"phone_verification": "Verify your phone number",
}

func (s *SMTPSender) SendCode(ctx context.Context, to, purpose, code string) error {
	subject, ok := purposeSubjects[purpose]
	if !ok {
		subject = "Your verification code"
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.config.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", fmt.Sprintf("Your code is %s. It expires in 5 minutes.", code))

	d := mail.NewDialer(s.config.Host, s.config.Port, s.config.Username, s.config.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         s.config.Host,
		InsecureSkipVerify: s.config.InsecureSkipVerify,
	}

	switch s.config.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = &tls.Config{InsecureSkipVerify: s.config.InsecureSkipVerify}
	default:
		// "auto": go-mail negotiates STARTTLS when the server offers it
	}

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
