package notify

import (
	"context"
	"errors"
	"log/slog"
)

// ErrSendFailed wraps every delivery failure.
var ErrSendFailed = errors.New("notify: send failed")

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
	// Kind tags the message for logs ("verification", "password_reset").
	Kind string
}

// Notifier delivers a Message.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogNotifier logs messages instead of sending them. The text body carries
// the link, so development setups can complete flows from the log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Send(ctx context.Context, msg Message) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email not sent (log notifier)",
		slog.String("kind", msg.Kind),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Text),
	)
	return nil
}
