package storage

import (
	"context"
	"fmt"
	"io"

	"memo-backend/internal/messaging"
)

// NotifyingStore publishes an object-created event after each successful
// write. It stands in for native bucket notifications on stores that cannot
// deliver them (local filesystem, MinIO without an event target). Writes made
// outside this process do not produce events; the transcription service must
// therefore also write through a notifying path in such deployments.
type NotifyingStore struct {
	ObjectStore
	publisher messaging.Publisher
}

func NewNotifyingStore(store ObjectStore, publisher messaging.Publisher) *NotifyingStore {
	return &NotifyingStore{ObjectStore: store, publisher: publisher}
}

func (s *NotifyingStore) PutObject(ctx context.Context, key string, data io.Reader) error {
	if err := s.ObjectStore.PutObject(ctx, key, data); err != nil {
		return err
	}

	err := s.publisher.PublishObjectCreated(ctx, messaging.ObjectCreatedPayload{
		Records: []messaging.ObjectRecord{{Bucket: s.Bucket(), Key: key}},
	})
	if err != nil {
		// The object is durable; only its announcement was lost. Surfacing
		// the error lets the delivery mechanism retry the whole operation.
		return fmt.Errorf("object %s written but event publish failed: %w", key, err)
	}

	return nil
}
