package messaging

import (
	"context"
	"time"
)

const (
	ObjectEventsQueue = "object_events"
	RetryDelay        = 5 * time.Second
	MaxConnectRetry   = 5
)

// ObjectRecord identifies one created object. Records arrive at least once
// and in no particular order relative to unrelated objects.
type ObjectRecord struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// ObjectCreatedPayload is the body of an object_events task. A single
// delivery may batch multiple creation records; consumers must process each
// record independently.
type ObjectCreatedPayload struct {
	Records []ObjectRecord `json:"records"`
}

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type Publisher interface {
	PublishObjectCreated(ctx context.Context, payload ObjectCreatedPayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
