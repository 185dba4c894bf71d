// Package notify delivers one-time codes over email and SMS. The engine
// only sees the two sender interfaces; hosts plug in their own gateway
// or use the bundled SMTP sender.
package notify

import "context"

// EmailSender delivers a one-time code to an email address.
type EmailSender interface {
	SendCode(ctx context.Context, to, purpose, code string) error
}

// SMSSender delivers a one-time code to a phone number.
type SMSSender interface {
	SendCode(ctx context.Context, to, purpose, code string) error
}

// NoopSender drops every code. Useful in tests and in deployments that
// read codes from the audit trail during development.
type NoopSender struct{}

func (NoopSender) SendCode(context.Context, string, string, string) error { return nil }
