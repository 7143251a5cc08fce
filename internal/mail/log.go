package mail

import (
	"context"
	"log/slog"
)

// LogMailer prints the task list instead of emailing it. Used in local mode
// where no email service is configured.
type LogMailer struct {
	Recipient string
}

var _ Mailer = (*LogMailer)(nil)

func (m *LogMailer) Send(ctx context.Context, subject, body string) error {
	slog.Info("task list ready", "recipient", m.Recipient, "tasks", body)
	return nil
}
