package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"memo-backend/internal/messaging"
	"memo-backend/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStage struct {
	keys []string
	err  error
}

func (s *recordingStage) Handle(ctx context.Context, rec messaging.ObjectRecord) error {
	s.keys = append(s.keys, rec.Key)
	return s.err
}

type fakeTask struct {
	payload  []byte
	acked    int
	nacked   int
	rejected int
}

func (t *fakeTask) Type() string    { return messaging.ObjectEventsQueue }
func (t *fakeTask) Payload() []byte { return t.payload }
func (t *fakeTask) Ack() error      { t.acked++; return nil }
func (t *fakeTask) Nack() error     { t.nacked++; return nil }
func (t *fakeTask) Reject() error   { t.rejected++; return nil }

func eventTask(t *testing.T, keys ...string) *fakeTask {
	t.Helper()

	var payload messaging.ObjectCreatedPayload
	for _, key := range keys {
		payload.Records = append(payload.Records, messaging.ObjectRecord{Bucket: "memos", Key: key})
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return &fakeTask{payload: body}
}

func TestDispatcherRoutesByPrefixAndSuffix(t *testing.T) {
	audio := &recordingStage{}
	transcripts := &recordingStage{}
	tasks := &recordingStage{}

	queue := messaging.NewInMemoryQueue()
	dispatcher := pipeline.NewDispatcher(queue)
	dispatcher.Subscribe(pipeline.AudioPrefix, "", audio)
	dispatcher.Subscribe(pipeline.TranscriptsPrefix, "", transcripts)
	dispatcher.Subscribe(pipeline.TasksPrefix, pipeline.TaskSuffix, tasks)

	task := eventTask(t,
		"audio/a.m4a",
		"transcripts/job1.json",
		"tasks/job1-tasks.txt",
		"tasks/job2-other.txt", // suffix mismatch, must not be dispatched
	)
	dispatcher.ProcessTask(task)

	assert.Equal(t, []string{"audio/a.m4a"}, audio.keys)
	assert.Equal(t, []string{"transcripts/job1.json"}, transcripts.keys)
	assert.Equal(t, []string{"tasks/job1-tasks.txt"}, tasks.keys)
	assert.Equal(t, 1, task.acked)
	assert.Equal(t, 0, task.nacked)
}

func TestDispatcherProcessesBatchRecordsIndependently(t *testing.T) {
	stage := &recordingStage{err: errors.New("downstream unavailable")}

	dispatcher := pipeline.NewDispatcher(messaging.NewInMemoryQueue())
	dispatcher.Subscribe(pipeline.TranscriptsPrefix, "", stage)

	task := eventTask(t, "transcripts/job1.json", "transcripts/job2.json")
	dispatcher.ProcessTask(task)

	// A failing record does not stop the rest of the batch, but the whole
	// batch is nacked for redelivery.
	assert.Equal(t, []string{"transcripts/job1.json", "transcripts/job2.json"}, stage.keys)
	assert.Equal(t, 0, task.acked)
	assert.Equal(t, 1, task.nacked)
}

func TestDispatcherRejectsMalformedPayload(t *testing.T) {
	stage := &recordingStage{}

	dispatcher := pipeline.NewDispatcher(messaging.NewInMemoryQueue())
	dispatcher.Subscribe(pipeline.AudioPrefix, "", stage)

	task := &fakeTask{payload: []byte("not json")}
	dispatcher.ProcessTask(task)

	assert.Empty(t, stage.keys)
	assert.Equal(t, 1, task.rejected)
}
