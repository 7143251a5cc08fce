package integrationtests

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"memo-backend/internal/api"
	"memo-backend/internal/database"
	"memo-backend/internal/messaging"
	"memo-backend/internal/pipeline"
	"memo-backend/internal/storage"
	"memo-backend/internal/transcribe"
	pub "memo-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type immediateTranscriber struct {
	store      storage.ObjectStore
	transcript string
}

func (f *immediateTranscriber) Start(ctx context.Context, req transcribe.Request) error {
	doc, err := json.Marshal(transcribe.NewTranscriptDocument(f.transcript))
	if err != nil {
		return err
	}
	return f.store.PutObject(ctx, req.OutputKey, bytes.NewReader(doc))
}

type staticGenerator struct{}

func (staticGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "- buy milk\n- call mom", nil
}

type recordingMailer struct {
	sent []string
}

func (m *recordingMailer) Send(ctx context.Context, subject, body string) error {
	m.sent = append(m.sent, body)
	return nil
}

// TestPipelineWorkflow runs the full upload-to-notification flow against real
// backing services: MinIO for the object store and PostgreSQL for submission
// tracking, with the in-process queue carrying object events between stages.
func TestPipelineWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.NewDatabase(setupPostgresContainer(t, ctx))
	require.NoError(t, err)

	s3Store := setupTestObjectStore(t, ctx)
	queue := messaging.NewInMemoryQueue()
	store := storage.NewNotifyingStore(s3Store, queue)

	mailer := &recordingMailer{}

	dispatcher := pipeline.NewDispatcher(queue)
	dispatcher.Subscribe(pipeline.AudioPrefix, "", pipeline.NewTranscriptionStage(db, store, &immediateTranscriber{store: store, transcript: "buy milk and call mom"}))
	dispatcher.Subscribe(pipeline.TranscriptsPrefix, "", pipeline.NewTaskExtractionStage(db, store, staticGenerator{}))
	dispatcher.Subscribe(pipeline.TasksPrefix, pipeline.TaskSuffix, pipeline.NewNotificationStage(db, store, mailer))

	router := chi.NewRouter()
	api.NewUploadService(db, store).AddRoutes(router)

	payload := pub.UploadRequest{Body: base64.StdEncoding.EncodeToString([]byte("fake m4a bytes"))}
	var uploaded pub.UploadResponse
	require.NoError(t, httpRequest(router, "POST", "/upload", payload, &uploaded))
	require.NotEmpty(t, uploaded.AudioKey)

	for done := false; !done; {
		select {
		case task := <-queue.Tasks():
			dispatcher.ProcessTask(task)
		case <-time.After(time.Second):
			done = true
		case <-ctx.Done():
			t.Fatal("Test timed out processing pipeline events")
		}
	}

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "- buy milk\n- call mom", mailer.sent[0])

	id, err := pipeline.SubmissionIdFromAudioKey(uploaded.AudioKey)
	require.NoError(t, err)

	var submission pub.Submission
	require.NoError(t, httpRequest(router, "GET", "/submissions/"+id.String(), nil, &submission))
	assert.Equal(t, database.SubmissionNotified, submission.Status)
	assert.NotEmpty(t, submission.JobName)
	assert.NotEmpty(t, submission.TranscriptKey)
	assert.Equal(t, "tasks/"+submission.JobName+"-tasks.txt", submission.TaskKey)
}
