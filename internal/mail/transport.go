// Package mail delivers outbound email.
package mail

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"
)

// ErrNoRecipients is returned when a message has no To addresses.
var ErrNoRecipients = errors.New("mail: no recipients")

// Message is a plain-text email.
type Message struct {
	Subject string
	Body    string
	To      []string
}

// Transport sends messages. Send either hands the message to the relay or
// returns an error; there are no retries.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, msg Message) error

func (f TransportFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

func (m Message) validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	for _, to := range m.To {
		if strings.ContainsAny(to, "\r\n") {
			return fmt.Errorf("mail: invalid recipient %q", to)
		}
	}
	return nil
}

// encode renders RFC 5322 headers and body with CRLF line endings.
func (m Message) encode(from string, now time.Time) []byte {
	var b strings.Builder
	writeHeader := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	writeHeader("From", from)
	writeHeader("To", strings.Join(m.To, ", "))
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	writeHeader("Date", now.Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", "text/plain; charset=UTF-8")
	writeHeader("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")

	body := strings.ReplaceAll(m.Body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
