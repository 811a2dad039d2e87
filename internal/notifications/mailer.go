package notifications

import (
	"context"

	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
)

// Email is a fully rendered outbound message.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered emails. Implementations own the transport;
// the dispatcher only cares about success or failure.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

type logMailer struct {
	logg *logger.Logger
}

// NewLogMailer returns a Mailer that writes deliveries to the log. Used in
// development and as the default when no provider is configured.
func NewLogMailer(logg *logger.Logger) Mailer {
	return &logMailer{logg: logg}
}

func (m *logMailer) Send(ctx context.Context, email Email) error {
	logCtx := m.logg.WithFields(ctx, map[string]any{
		"to":      email.To,
		"subject": email.Subject,
	})
	m.logg.Info(logCtx, "email delivered to log sink")
	return nil
}
