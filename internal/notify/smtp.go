// Package notify alerts operators by mail. Delivery is best-effort.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
)

type Config struct {
	Host      string
	Port      int
	TLS       bool
	Username  string
	Password  string
	From      string
	Operators []string
	Timeout   time.Duration
}

type SMTP struct {
	cfg    Config
	send   func(ctx context.Context, cfg Config, msg []byte) error
	now    func() time.Time
	logger *slog.Logger
}

func NewSMTP(cfg Config, logger *slog.Logger) *SMTP {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTP{
		cfg:    cfg,
		send:   sendMail,
		now:    time.Now,
		logger: logger.With("component", "notifier"),
	}
}

// NotifyOperators mails subject and body to every configured operator.
// Failures are logged and never returned.
func (n *SMTP) NotifyOperators(ctx context.Context, subject, body string) {
	if len(n.cfg.Operators) == 0 || n.cfg.Host == "" {
		n.logger.Debug("operator notification skipped, no recipients", "subject", subject)
		return
	}

	msg, err := compose(n.cfg.From, n.cfg.Operators, subject, body, n.now())
	if err != nil {
		n.logger.Error("compose operator notification", "subject", subject, "error", err)
		return
	}

	if err := n.send(ctx, n.cfg, msg); err != nil {
		n.logger.Error("send operator notification", "subject", subject, "error", err)
		return
	}
	n.logger.Info("operator notified", "subject", subject, "recipients", len(n.cfg.Operators))
}

// compose builds a multipart/alternative message with a plain text part and
// an HTML part that shows the same text preformatted.
func compose(from string, to []string, subject, body string, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(subject)
	h.SetAddressList("From", []*mail.Address{{Address: from}})

	rcpt := make([]*mail.Address, len(to))
	for i, addr := range to {
		rcpt[i] = &mail.Address{Address: addr}
	}
	h.SetAddressList("To", rcpt)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline: %w", err)
	}

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain", body},
		{"text/html", "<html><body><pre>" + html.EscapeString(body) + "</pre></body></html>"},
	}
	for _, part := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		w, err := tw.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("create %s part: %w", part.contentType, err)
		}
		if _, err := io.WriteString(w, part.content); err != nil {
			return nil, fmt.Errorf("write %s part: %w", part.contentType, err)
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sendMail(ctx context.Context, cfg Config, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	tlsConfig := &tls.Config{ServerName: cfg.Host}

	var conn net.Conn
	var err error
	if cfg.TLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	_ = conn.SetDeadline(sessionDeadline(ctx, time.Now(), cfg.Timeout))

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer client.Close()

	if !cfg.TLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("SMTP STARTTLS: %w", err)
			}
		}
	}

	if cfg.Username != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := client.Mail(cfg.From); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	for _, rcpt := range cfg.Operators {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	return client.Quit()
}

// sessionDeadline bounds the whole SMTP exchange by timeout, or by the
// context deadline when that is sooner.
func sessionDeadline(ctx context.Context, now time.Time, timeout time.Duration) time.Time {
	deadline := now.Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}
