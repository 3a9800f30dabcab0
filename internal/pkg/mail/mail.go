package mail

import (
	"context"
	"io"
)

// Message is a provider-agnostic email payload.
type Message struct {
	From     string   // optional; the sender falls back to the provider default
	To       []string // primary recipients
	Cc       []string
	Bcc      []string
	Subject  string
	TextBody string // plain-text body, used when HTMLBody is empty
	HTMLBody string // optional HTML alternative
}

// Mail delivers messages through some provider.
type Mail interface {
	io.Closer

	// Send dispatches msg. Implementations honor ctx cancellation before any
	// network work starts.
	Send(ctx context.Context, msg Message) error
}
