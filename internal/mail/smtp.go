package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/spec-kit/account-service/internal/config"
)

// SMTPTransport sends mail through an SMTP relay, using implicit TLS when
// UseSSL is set and STARTTLS whenever the server offers it otherwise.
type SMTPTransport struct {
	cfg config.SMTPConfig
	now func() time.Time
}

// NewSMTPTransport builds a transport for cfg.
func NewSMTPTransport(cfg config.SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg, now: time.Now}
}

func (t *SMTPTransport) from() string {
	if t.cfg.FromName == "" {
		return t.cfg.From
	}
	return fmt.Sprintf("%s <%s>", t.cfg.FromName, t.cfg.From)
}

// Send delivers msg to every recipient in a single SMTP transaction.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	deadline := t.now().Add(t.cfg.Timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn, err := t.dial(ctx, deadline)
	if err != nil {
		return err
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if !t.cfg.UseSSL {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: t.cfg.Host}); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}

	if t.cfg.Username != "" && t.cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(t.cfg.From); err != nil {
		return fmt.Errorf("smtp sender %s: %w", t.cfg.From, err)
	}
	for _, to := range msg.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("smtp recipient %s: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg.encode(t.from(), t.now())); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}

func (t *SMTPTransport) dial(ctx context.Context, deadline time.Time) (net.Conn, error) {
	dialer := &net.Dialer{Deadline: deadline}
	addr := t.cfg.Addr()

	if t.cfg.UseSSL {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: t.cfg.Host}}
		conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("smtp dial (ssl) %s: %w", addr, err)
		}
		return conn, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	return conn, nil
}
