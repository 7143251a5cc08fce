package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"memo-backend/internal/database"
	"memo-backend/internal/mail"
	"memo-backend/internal/messaging"
	"memo-backend/internal/storage"

	"gorm.io/gorm"
)

// NotificationStage emails a task object's full text, verbatim, as both
// subject and body. One email per task object, no templating or splitting;
// a redelivered task event sends a duplicate email.
type NotificationStage struct {
	db     *gorm.DB
	store  storage.ObjectStore
	mailer mail.Mailer
}

var _ Stage = (*NotificationStage)(nil)

func NewNotificationStage(db *gorm.DB, store storage.ObjectStore, mailer mail.Mailer) *NotificationStage {
	return &NotificationStage{db: db, store: store, mailer: mailer}
}

func (s *NotificationStage) Handle(ctx context.Context, rec messaging.ObjectRecord) error {
	obj, err := s.store.GetObject(ctx, rec.Key)
	if err != nil {
		return fmt.Errorf("failed to read task object %s: %w", rec.Key, err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return fmt.Errorf("failed to read task object %s: %w", rec.Key, err)
	}

	tasks := string(raw)
	if err := s.mailer.Send(ctx, tasks, tasks); err != nil {
		return fmt.Errorf("failed to send task email for %s: %w", rec.Key, err)
	}

	slog.Info("task email sent", "task_key", rec.Key)

	if s.db != nil {
		database.MarkNotified(ctx, s.db, JobNameFromTaskKey(rec.Key)) //nolint:errcheck
	}

	return nil
}
