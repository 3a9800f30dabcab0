package mail

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/smtp"
	"slices"
	"strings"
)

var (
	// ErrSMTPHostPortRequired is returned when Host or Port is missing.
	ErrSMTPHostPortRequired = errors.New("smtp host and port are required")
	// ErrSMTPNoRecipients is returned when To, Cc, and Bcc are all empty.
	ErrSMTPNoRecipients = errors.New("no recipients provided")
	// ErrSMTPNoSender is returned when neither the message nor the config names a sender.
	ErrSMTPNoSender = errors.New("no sender provided")
)

// SMTP delivers Messages through net/smtp.
type SMTP struct {
	addr        string
	defaultFrom string
	auth        smtp.Auth
}

// SMTPConfig holds the connection settings for an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // default sender when Message.From is empty
}

// NewSMTP builds an SMTP sender. Auth is plain and only engaged when both
// username and password are set.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, ErrSMTPHostPortRequired
	}

	s := &SMTP{
		addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		defaultFrom: cfg.From,
	}

	if cfg.Username != "" && cfg.Password != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return s, nil
}

// Send renders msg into an RFC 5322 payload and hands it to the relay.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	envelope := slices.Concat(msg.To, msg.Cc, msg.Bcc)
	if len(envelope) == 0 {
		return ErrSMTPNoRecipients
	}

	from, err := s.sender(msg)
	if err != nil {
		return err
	}

	var raw strings.Builder
	fmt.Fprintf(&raw, "From: %s\r\n", from)
	fmt.Fprintf(&raw, "To: %s\r\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&raw, "Cc: %s\r\n", strings.Join(msg.Cc, ", "))
	}
	fmt.Fprintf(&raw, "Subject: %s\r\n", msg.Subject)
	raw.WriteString("MIME-Version: 1.0\r\n")

	writeBody(&raw, msg)

	if err := ctx.Err(); err != nil {
		return err
	}

	return smtp.SendMail(s.addr, s.auth, from, envelope, []byte(raw.String()))
}

// Close satisfies io.Closer; net/smtp holds no persistent connection.
func (s *SMTP) Close() error {
	return nil
}

// sender picks Message.From, falling back to the configured default.
func (s *SMTP) sender(msg Message) (string, error) {
	switch {
	case msg.From != "":
		return msg.From, nil
	case s.defaultFrom != "":
		return s.defaultFrom, nil
	default:
		return "", ErrSMTPNoSender
	}
}

// writeBody appends the Content-Type header and body. Messages carrying both
// text and HTML become multipart/alternative.
func writeBody(raw *strings.Builder, msg Message) {
	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		boundary := mimeBoundary()
		fmt.Fprintf(raw, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)
		raw.WriteString("This is a multipart message in MIME format.\r\n")
		fmt.Fprintf(raw, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n", boundary, msg.TextBody)
		fmt.Fprintf(raw, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n", boundary, msg.HTMLBody)
		fmt.Fprintf(raw, "--%s--", boundary)

	case msg.HTMLBody != "":
		fmt.Fprintf(raw, "Content-Type: text/html; charset=UTF-8\r\n\r\n%s", msg.HTMLBody)

	default:
		fmt.Fprintf(raw, "Content-Type: text/plain; charset=UTF-8\r\n\r\n%s", msg.TextBody)
	}
}

func mimeBoundary() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "cashkite-boundary-fallback"
	}

	return "cashkite-boundary-" + hex.EncodeToString(b[:])
}
