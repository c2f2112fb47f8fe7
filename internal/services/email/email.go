// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email delivers reset and onboarding links.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"codeberg.org/harbourline/intake/internal/config"
	"codeberg.org/harbourline/intake/internal/i18n"
	"github.com/wneessen/go-mail"
)

// Sender sends a link that lets the recipient set a password.
type Sender interface {
	SendResetEmail(ctx context.Context, to, link string, isOnboarding bool) error
}

// Links builds the URLs embedded in outgoing mail.
type Links struct {
	BaseURL string
}

// Reset returns the password reset link for a raw token.
func (l Links) Reset(rawToken string) string {
	return strings.TrimSuffix(l.BaseURL, "/") + "/admin/reset-password?token=" + url.QueryEscape(rawToken)
}

// Onboarding returns the onboarding link for a raw token.
func (l Links) Onboarding(rawToken string) string {
	return strings.TrimSuffix(l.BaseURL, "/") + "/admin/onboarding?token=" + url.QueryEscape(rawToken)
}

// New returns an SMTP sender, or a LogSender when no SMTP host is configured.
func New(cfg *config.SMTPConfig) (Sender, error) {
	if cfg.Host == "" {
		slog.Warn("SMTP not configured, emails are written to the log")
		return &LogSender{}, nil
	}
	return NewSMTPSender(cfg)
}

// SMTPSender sends mail with go-mail.
type SMTPSender struct {
	client   *mail.Client
	from     string
	fromName string
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg *config.SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	opts := []mail.Option{mail.WithPort(cfg.Port)}

	if cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Port 465 is implicit TLS, everything else uses STARTTLS
		if cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating mail client: %w", err)
	}

	return &SMTPSender{client: client, from: cfg.From, fromName: cfg.FromName}, nil
}

// SendResetEmail sends a localized reset or onboarding mail.
func (s *SMTPSender) SendResetEmail(ctx context.Context, to, link string, isOnboarding bool) error {
	subject, body := Compose(ctx, link, isOnboarding)

	msg, err := s.message(to, subject, body)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

func (s *SMTPSender) message(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.fromName != "" {
		if err := msg.FromFormat(s.fromName, s.from); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("setting from address: %w", err)
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// LogSender writes the link to the log instead of sending mail. Development only.
type LogSender struct{}

// SendResetEmail logs the link.
func (LogSender) SendResetEmail(ctx context.Context, to, link string, isOnboarding bool) error {
	subject, _ := Compose(ctx, link, isOnboarding)
	slog.InfoContext(ctx, "email_not_sent", "to", to, "subject", subject, "link", link)
	return nil
}

// Compose renders the localized subject and body.
func Compose(ctx context.Context, link string, isOnboarding bool) (subject, body string) {
	prefix := "reset"
	if isOnboarding {
		prefix = "onboarding"
	}
	subject = i18n.T(ctx, prefix+"_email_subject")
	body = i18n.T(ctx, prefix+"_email_body", map[string]any{"URL": link})
	return subject, body
}
