package mail

import "context"

// Mailer delivers the task list to its fixed recipient. Sender and recipient
// are deployment configuration, not per-message data.
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}
