// Package email delivers account notifications over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultTimeout = 30 * time.Second

// Config holds the SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	UseSSL   bool
	Timeout  time.Duration
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) complete() bool {
	return c.Host != "" && c.Port > 0 && c.From != ""
}

// Sender transmits one rendered HTML message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewSender picks the transport for cfg. In mock mode messages are only
// logged. A nil Sender is returned when the SMTP settings are incomplete,
// which disables delivery.
func NewSender(cfg Config, mock bool, log zerolog.Logger) Sender {
	switch {
	case mock:
		log.Info().Msg("email running in mock mode, messages are logged only")
		return &LogSender{log: log}
	case !cfg.complete():
		log.Warn().Msg("SMTP configuration is incomplete, email delivery disabled")
		return nil
	default:
		return NewSMTPMailer(cfg)
	}
}

// LogSender records messages in the log instead of sending them. The body is
// never logged since it carries verification links.
type LogSender struct {
	log zerolog.Logger
}

func (s *LogSender) Send(_ context.Context, to, subject, _ string) error {
	s.log.Info().Str("to", to).Str("subject", subject).Msg("mock email sent")
	return nil
}

// SMTPMailer sends mail with STARTTLS, or implicit TLS when UseSSL is set.
type SMTPMailer struct {
	cfg Config
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := m.buildMessage(to, subject, body)

	conn, err := m.dial(ctx)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(m.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("smtp hello: %w", err)
	}
	if !m.cfg.UseSSL {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp recipient: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return client.Quit()
}

func (m *SMTPMailer) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: m.cfg.Timeout, KeepAlive: 30 * time.Second}
	if m.cfg.UseSSL {
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: m.cfg.Host}}
		conn, err := td.DialContext(ctx, "tcp", m.cfg.addr())
		if err != nil {
			return nil, fmt.Errorf("smtp dial %s: %w", m.cfg.addr(), err)
		}
		return conn, nil
	}
	conn, err := dialer.DialContext(ctx, "tcp", m.cfg.addr())
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", m.cfg.addr(), err)
	}
	return conn, nil
}

func (m *SMTPMailer) buildMessage(to, subject, body string) []byte {
	from := m.cfg.From
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", m.cfg.FromName), m.cfg.From)
	}

	var b strings.Builder
	headers := [][2]string{
		{"From", from},
		{"To", to},
		{"Subject", mime.QEncoding.Encode("utf-8", subject)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}
	for _, h := range headers {
		b.WriteString(h[0])
		b.WriteString(": ")
		b.WriteString(h[1])
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
