package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"memo-backend/internal/messaging"
)

// Stage is one handler in the pipeline: triggered by an object-created
// record, performing one unit of transformation. Handlers run under
// at-least-once delivery and must tolerate repeat invocations for the same
// key.
type Stage interface {
	Handle(ctx context.Context, rec messaging.ObjectRecord) error
}

// Subscription routes object records to a stage by key prefix and suffix.
type Subscription struct {
	Prefix string
	Suffix string
	Stage  Stage
}

func (s Subscription) Matches(key string) bool {
	return strings.HasPrefix(key, s.Prefix) && strings.HasSuffix(key, s.Suffix)
}

// Dispatcher consumes object_events tasks and fans each record in a batch
// out to every matching stage. Records are independent: a failure on one
// record does not stop the others, but any failure nacks the whole batch so
// the delivery mechanism redelivers it, already-processed records included.
type Dispatcher struct {
	receiver messaging.Receiver
	subs     []Subscription
}

func NewDispatcher(receiver messaging.Receiver) *Dispatcher {
	return &Dispatcher{receiver: receiver}
}

func (d *Dispatcher) Subscribe(prefix, suffix string, stage Stage) {
	d.subs = append(d.subs, Subscription{Prefix: prefix, Suffix: suffix, Stage: stage})
}

func (d *Dispatcher) Start() {
	slog.Info("starting pipeline dispatcher", "subscriptions", len(d.subs))

	for task := range d.receiver.Tasks() {
		d.ProcessTask(task)
	}
}

func (d *Dispatcher) Stop() {
	slog.Info("stopping pipeline dispatcher")

	d.receiver.Close()
}

func (d *Dispatcher) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	if task.Type() != messaging.ObjectEventsQueue {
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	var payload messaging.ObjectCreatedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		slog.Error("error unmarshalling object event", "error", err)
		if err := task.Reject(); err != nil { // Discard malformed message
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	var failed bool
	for _, rec := range payload.Records {
		for _, sub := range d.subs {
			if !sub.Matches(rec.Key) {
				continue
			}
			if err := sub.Stage.Handle(ctx, rec); err != nil {
				slog.Error("error processing object record", "key", rec.Key, "error", err)
				failed = true
			}
		}
	}

	if failed {
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}
